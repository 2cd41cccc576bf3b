package entity

import "encoding/json"

// Record is one typed, keyed record fetched from a repository.
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid,omitempty"`
	Value json.RawMessage `json:"value"`
}

// RecordPage is one page of a listRecords response. An empty Cursor signals
// end-of-stream.
type RecordPage struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor,omitempty"`
}

// RepoDescription is the describeRepo response for one repository.
type RepoDescription struct {
	DID             string   `json:"did"`
	Handle          string   `json:"handle"`
	Collections     []string `json:"collections"`
	HandleIsCorrect bool     `json:"handleIsCorrect"`
}

// RepoRef is one repository entry from a sync.listRepos page.
type RepoRef struct {
	DID    string `json:"did"`
	Head   string `json:"head,omitempty"`
	Rev    string `json:"rev,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// RepoPage is one page of a sync.listRepos response.
type RepoPage struct {
	Repos  []RepoRef `json:"repos"`
	Cursor string    `json:"cursor,omitempty"`
}

// BlobRef describes an uploaded blob as returned by uploadBlob.
type BlobRef struct {
	Type     string          `json:"$type,omitempty"`
	Ref      json.RawMessage `json:"ref,omitempty"`
	MimeType string          `json:"mimeType"`
	Size     int64           `json:"size"`
}
