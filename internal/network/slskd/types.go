package slskd

import "time"

// serverState is the body of GET /api/v0/server.
type serverState struct {
	State       string `json:"state"`
	Username    string `json:"username"`
	IsConnected bool   `json:"isConnected"`
	IsLoggedIn  bool   `json:"isLoggedIn"`
}

// searchRequest is the body of POST /api/v0/searches.
type searchRequest struct {
	ID              string `json:"id"`
	SearchText      string `json:"searchText"`
	SearchTimeout   int    `json:"searchTimeout"`
	FilterResponses bool   `json:"filterResponses"`
}

// search is a search as returned by /api/v0/searches.
type search struct {
	ID            string `json:"id"`
	SearchText    string `json:"searchText"`
	State         string `json:"state"`
	IsComplete    bool   `json:"isComplete"`
	ResponseCount int    `json:"responseCount"`
}

// searchResponse is one peer's answer to a search.
type searchResponse struct {
	Username string       `json:"username"`
	Files    []searchFile `json:"files"`
}

type searchFile struct {
	Filename          string `json:"filename"`
	Size              int64  `json:"size"`
	BitRate           *int   `json:"bitRate,omitempty"`
	SampleRate        *int   `json:"sampleRate,omitempty"`
	BitDepth          *int   `json:"bitDepth,omitempty"`
	Length            *int   `json:"length,omitempty"`
	IsVariableBitRate *bool  `json:"isVariableBitRate,omitempty"`
}

// enqueueFile is one element of the POST /api/v0/transfers/downloads/{user} body.
type enqueueFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type userDownloads struct {
	Username    string               `json:"username"`
	Directories []directoryDownloads `json:"directories"`
}

type directoryDownloads struct {
	Directory string         `json:"directory"`
	Files     []downloadFile `json:"files"`
}

// downloadFile is a transfer. State uses the "Phase, Status" format.
type downloadFile struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Filename         string     `json:"filename"`
	State            string     `json:"state"`
	BytesTransferred int64      `json:"bytesTransferred"`
	Size             int64      `json:"size"`
	AverageSpeed     float64    `json:"averageSpeed"`
	PlaceInQueue     *int       `json:"placeInQueue,omitempty"`
	Exception        string     `json:"exception,omitempty"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
}
