package lifecycle

// DisplayState is the read-only view the page renders from.
//
// Revision increases with every change so consumers receiving snapshots
// from several goroutines can drop out-of-order ones.
type DisplayState struct {
	Revision         uint64 `json:"revision"`
	Status           Status `json:"status"`
	JobID            string `json:"job_id,omitempty"`
	Origin           Origin `json:"origin,omitempty"`
	ShowUploadPrompt bool   `json:"show_upload_prompt"`
	ShowProgress     bool   `json:"show_progress"`
	Progress         int    `json:"progress"`
	Busy             bool   `json:"busy"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ShowComparison   bool   `json:"show_comparison"`
	OriginalURL      string `json:"original_url,omitempty"`
	ProcessedURL     string `json:"processed_url,omitempty"`
	DownloadURL      string `json:"download_url,omitempty"`
}

// Equivalent compares two states ignoring Revision.
func (d DisplayState) Equivalent(other DisplayState) bool {
	d.Revision, other.Revision = 0, 0
	return d == other
}

// project builds the DisplayState for the given source and job. A nil job
// means idle.
func project(revision uint64, source *SourceImage, job *Job, downloadURL string) DisplayState {
	ds := DisplayState{
		Revision:         revision,
		Status:           StatusIdle,
		ShowUploadPrompt: true,
	}
	if source != nil {
		ds.OriginalURL = source.Handle.URL
		ds.Origin = source.Origin
	}
	if job == nil {
		return ds
	}

	busy := job.Status.Active()
	ds.Status = job.Status
	ds.JobID = job.ID
	ds.Origin = job.Origin
	ds.Busy = busy
	ds.ShowUploadPrompt = !busy
	ds.ShowProgress = busy
	ds.Progress = job.Progress

	switch job.Status {
	case StatusFailed:
		ds.ErrorMessage = job.ErrorMessage
	case StatusSucceeded:
		ds.ProcessedURL = job.Result.URL
		ds.DownloadURL = downloadURL
		ds.ShowComparison = source != nil && !job.Result.IsZero()
	}
	return ds
}
