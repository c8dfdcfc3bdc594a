// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultHandlerTimeout is the default timeout for HTTP handlers.
	DefaultHandlerTimeout = 30 * time.Second
	// DefaultJobTimeout is the default timeout for job processing.
	DefaultJobTimeout = 30 * time.Minute
	// DefaultJobWorkers is the default number of workers for job processing.
	DefaultJobWorkers = 2
	// DefaultQueueSize is the default size of the job queue.
	DefaultQueueSize = 50
	// DefaultSimulateStep is the delay between two simulated progress updates of the mock extractor.
	DefaultSimulateStep = 20 * time.Millisecond
	// DefaultJobTTL is the default time-to-live for stored job records.
	DefaultJobTTL = 24 * time.Hour
	// DefaultMergeContainer is the container auto-merged downloads are converted to.
	DefaultMergeContainer = "mp4"
	// DefaultProbeTimeout bounds the merge tool availability probe.
	DefaultProbeTimeout = 5 * time.Second
	// DescriptionPreviewLen is the number of description characters kept in metadata.
	DescriptionPreviewLen = 200
)

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespQueryParamMissing is returned when a required query parameter is missing or invalid.
	RespQueryParamMissing = "query param missing or invalid"
	// RespUnprocessableEntity is returned when the request cannot be processed.
	RespUnprocessableEntity = "unprocessable entity"
	// RespJobEnqueued is returned when a job is successfully enqueued.
	RespJobEnqueued = "job enqueued"
	// RespJobEnqueueFail is returned when a job cannot be enqueued.
	RespJobEnqueueFail = "job enqueue failed"
	// RespGetJobsFail is returned when fetching all jobs fails.
	RespGetJobsFail = "get all jobs failed"
	// RespGetJobFail is returned when fetching a specific job fails.
	RespGetJobFail = "get job failed"
	// RespNoJobs is returned when there are no jobs available.
	RespNoJobs = "no jobs"
	// RespJobRetrieved is returned when a job is successfully retrieved.
	RespJobRetrieved = "job retrieved"
	// RespJobsRetrieved is returned when jobs are successfully retrieved.
	RespJobsRetrieved = "jobs retrieved"
	// RespJobNotFound is returned when a job is not found.
	RespJobNotFound = "job not found"
	// RespJobCancelled is returned when a job cancel was requested.
	RespJobCancelled = "job cancellation requested"
	// RespJobNotCancellable is returned when a finished job is cancelled.
	RespJobNotCancellable = "job already finished"
	// RespFormatsListed is returned with a quality menu.
	RespFormatsListed = "formats listed"
	// RespFormatsListFail is returned when formats could not be listed.
	RespFormatsListFail = "formats list failed"
	// RespVideoRetrieved is returned with video metadata.
	RespVideoRetrieved = "video retrieved"
	// RespVideoRetrieveFail is returned when metadata could not be fetched.
	RespVideoRetrieveFail = "video retrieve failed"
	// RespSystemStatus is returned with the system status.
	RespSystemStatus = "system status"
)

// Extractor backends.
const (
	// ExtractorYTdlp is the yt-dlp backend identifier.
	ExtractorYTdlp = "ytdlp"
	// ExtractorMock is the mock backend identifier for testing.
	ExtractorMock = "mock"
)

// Stream labels of progress events.
const (
	StreamFile   = "file"
	StreamVideo  = "video"
	StreamAudio  = "audio"
	StreamMerged = "merged"
)
