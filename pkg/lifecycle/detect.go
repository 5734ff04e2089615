package lifecycle

import "os"

// DetectOrchestrator reports whether the process runs inside Kubernetes.
func DetectOrchestrator() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}
