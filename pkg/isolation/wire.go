package isolation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// wireRequest is one line sent to a subprocess's stdin: the claimed job
// to execute.
type wireRequest struct {
	Job jobqueue.Job `json:"job"`
}

// wireResponse is one line read back from a subprocess's stdout,
// mirroring the four WorkerResult variants plus a plain error shape.
type wireResponse struct {
	Kind    string `json:"kind"` // "ok" | "error" | "cancel" | "snooze"
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
	AfterMS int64  `json:"after_ms,omitempty"`
}

func (resp wireResponse) toResult() jobqueue.Result {
	switch resp.Kind {
	case "ok":
		return jobqueue.Ok()
	case "cancel":
		return jobqueue.Cancel(resp.Reason)
	case "snooze":
		return jobqueue.Snooze(time.Duration(resp.AfterMS) * time.Millisecond)
	default:
		msg := resp.Error
		if msg == "" {
			msg = "isolated worker returned an unrecognized result"
		}
		return jobqueue.Err(errors.New(msg))
	}
}

func resultToWire(result jobqueue.Result) wireResponse {
	if result.IsOk() {
		return wireResponse{Kind: "ok"}
	}
	if reason, ok := result.IsCancel(); ok {
		return wireResponse{Kind: "cancel", Reason: reason}
	}
	if after, ok := result.IsSnooze(); ok {
		return wireResponse{Kind: "snooze", AfterMS: after.Milliseconds()}
	}
	err, _ := result.IsErr()
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return wireResponse{Kind: "error", Error: msg}
}

func (wc *workerContext) send(job jobqueue.Job) (wireResponse, error) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	line, err := json.Marshal(wireRequest{Job: job})
	if err != nil {
		return wireResponse{}, err
	}
	line = append(line, '\n')
	if _, err := wc.stdin.Write(line); err != nil {
		return wireResponse{}, err
	}

	if !wc.stdout.Scan() {
		if err := wc.stdout.Err(); err != nil {
			return wireResponse{}, err
		}
		return wireResponse{}, errSubprocessExited
	}

	var resp wireResponse
	if err := json.Unmarshal(wc.stdout.Bytes(), &resp); err != nil {
		return wireResponse{}, err
	}
	return resp, nil
}
