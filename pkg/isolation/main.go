package isolation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// ShouldRunAsWorker reports whether the current process was re-exec'd
// as an isolation subprocess. A host's main() must check this, and call
// Main if true, before doing any of its normal startup.
func ShouldRunAsWorker() bool {
	return os.Getenv(EnvVar) == "1"
}

// Main is the isolation subprocess entrypoint. It reads the worker name
// to load from os.Args[1], then loops reading one wireRequest per line
// from stdin, invoking the matching handler from reg, and writing one
// wireResponse per line to stdout. It returns when stdin is closed.
func Main(reg *jobqueue.Registry) error {
	if len(os.Args) < 2 {
		return fmt.Errorf("isolation: missing worker path argument")
	}
	workerPath := os.Args[1]
	w, ok := reg.Get(workerPath)
	if !ok {
		return fmt.Errorf("isolation: worker %q not registered in this binary", workerPath)
	}

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for in.Scan() {
		var req wireRequest
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			writeResponse(out, wireResponse{Kind: "error", Error: "isolation: malformed request: " + err.Error()})
			continue
		}
		result := w.Execute(context.Background(), req.Job, req.Job.Args)
		writeResponse(out, resultToWire(result))
	}
	return in.Err()
}

func writeResponse(out *bufio.Writer, resp wireResponse) {
	line, err := json.Marshal(resp)
	if err != nil {
		line = []byte(`{"kind":"error","error":"isolation: failed to encode response"}`)
	}
	out.Write(line)
	out.WriteByte('\n')
	out.Flush()
}
