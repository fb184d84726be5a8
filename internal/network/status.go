package network

// UpstreamStatus is a transfer status code as reported by the peer network.
type UpstreamStatus string

const (
	StatusQueued              UpstreamStatus = "Queued"
	StatusGettingStatus       UpstreamStatus = "Getting status"
	StatusTransferring        UpstreamStatus = "Transferring"
	StatusFinished            UpstreamStatus = "Finished"
	StatusPaused              UpstreamStatus = "Paused"
	StatusCancelled           UpstreamStatus = "Cancelled"
	StatusFiltered            UpstreamStatus = "Filtered"
	StatusConnectionClosed    UpstreamStatus = "Connection closed"
	StatusConnectionTimeout   UpstreamStatus = "Connection timeout"
	StatusUserLoggedOff       UpstreamStatus = "User logged off"
	StatusLocalFileError      UpstreamStatus = "Local file error"
	StatusDownloadFolderError UpstreamStatus = "Download folder error"
)

// UpstreamStatuses lists every documented status code.
func UpstreamStatuses() []UpstreamStatus {
	return []UpstreamStatus{
		StatusQueued,
		StatusGettingStatus,
		StatusTransferring,
		StatusFinished,
		StatusPaused,
		StatusCancelled,
		StatusFiltered,
		StatusConnectionClosed,
		StatusConnectionTimeout,
		StatusUserLoggedOff,
		StatusLocalFileError,
		StatusDownloadFolderError,
	}
}
