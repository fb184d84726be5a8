package slskd

import (
	"strings"

	"github.com/tunedrift/tunedrift/internal/network"
)

// upstreamStatus translates an slskd transfer state into a network status code.
//
//	Requested, Queued*        -> Queued
//	Initializing              -> Getting status
//	InProgress                -> Transferring
//	Completed, Succeeded      -> Finished
//	Completed, Cancelled      -> Cancelled
//	Completed, TimedOut       -> Connection timeout
//	Completed, Rejected       -> Connection closed
//	Completed, Errored        -> classified by the exception text
func upstreamStatus(state, exception string) network.UpstreamStatus {
	switch {
	case strings.Contains(state, "Succeeded"):
		return network.StatusFinished
	case strings.Contains(state, "Cancelled"):
		return network.StatusCancelled
	case strings.Contains(state, "TimedOut"):
		return network.StatusConnectionTimeout
	case strings.Contains(state, "Rejected"):
		return network.StatusConnectionClosed
	case strings.Contains(state, "Errored"):
		return classifyError(exception)
	case strings.Contains(state, "InProgress"):
		return network.StatusTransferring
	case strings.Contains(state, "Initializing"):
		return network.StatusGettingStatus
	default:
		return network.StatusQueued
	}
}

func classifyError(exception string) network.UpstreamStatus {
	e := strings.ToLower(exception)
	switch {
	case strings.Contains(e, "offline"), strings.Contains(e, "logged off"):
		return network.StatusUserLoggedOff
	case strings.Contains(e, "directory"), strings.Contains(e, "folder"):
		return network.StatusDownloadFolderError
	case strings.Contains(e, "file"), strings.Contains(e, "disk"), strings.Contains(e, "access"):
		return network.StatusLocalFileError
	default:
		return network.StatusConnectionClosed
	}
}
