package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/models"
)

var (
	_ Source = (*AlertManagerCollector)(nil)
	_ Source = (*KubernetesCollector)(nil)
)

func TestAlertManagerCollect(t *testing.T) {
	ended := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/alerts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"labels": {"alertname": "HighLatency", "severity": "critical"},
			 "annotations": {"summary": "checkout slow"},
			 "startsAt": "2025-03-04T10:00:00Z", "endsAt": "` + future + `",
			 "fingerprint": "f1", "status": {"state": "active"}},
			{"labels": {"alertname": "DiskFull"},
			 "startsAt": "2025-03-04T09:00:00Z", "endsAt": "` + ended + `",
			 "fingerprint": "f2", "status": {"state": "active"}},
			{"labels": {"alertname": "Silenced"},
			 "startsAt": "2025-03-04T09:00:00Z", "endsAt": "` + future + `",
			 "fingerprint": "f3", "status": {"state": "suppressed"}}
		]`))
	}))
	defer srv.Close()

	c := NewAlertManagerCollector(&config.Config{AlertManager: config.AlertManagerConfig{URL: srv.URL + "/"}})
	assert.Equal(t, "alertmanager", c.Name())
	polled := time.Now().Truncate(time.Second)
	c.now = func() time.Time { return polled }

	raws, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, "HighLatency", raws[0]["activity_name"])
	assert.Equal(t, "failure", raws[0]["status"])
	assert.Equal(t, "f1", raws[0]["alert_id"])
	assert.Equal(t, 9, raws[0]["severity"])
	assert.Equal(t, models.FormatTimestamp(polled), raws[0]["timestamp"])
	assert.Equal(t, "2025-03-04T10:00:00Z", raws[0]["starts_at"])
	assert.NotEmpty(t, raws[0]["execution_id"])
	assert.Equal(t, raws[0]["execution_id"], raws[1]["execution_id"])

	assert.Equal(t, "DiskFull", raws[1]["activity_name"])
	assert.Equal(t, "success", raws[1]["status"])
}

func TestAlertManagerCollectErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewAlertManagerCollector(&config.Config{AlertManager: config.AlertManagerConfig{URL: srv.URL}})
	_, err := c.Collect(context.Background())
	assert.ErrorContains(t, err, "502")
}

func pod(name string, labels map[string]string, statuses ...corev1.ContainerStatus) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "payments", Labels: labels},
		Status:     corev1.PodStatus{ContainerStatuses: statuses},
	}
}

func TestKubernetesCollect(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("account-server-7f9", map[string]string{"app": "account-server"},
			corev1.ContainerStatus{Name: "api", Ready: true, RestartCount: 0},
			corev1.ContainerStatus{
				Name:         "sidecar",
				RestartCount: 4,
				State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{
					Reason: "CrashLoopBackOff", Message: "back-off 5m0s restarting failed container",
				}},
				LastTerminationState: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{ExitCode: 1}},
			},
		),
		pod("batch-job-x1", nil,
			corev1.ContainerStatus{
				Name:  "worker",
				State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "Error", ExitCode: 137}},
			},
		),
		pod("loan-server-abc", map[string]string{"app.kubernetes.io/name": "loan-server"},
			corev1.ContainerStatus{Name: "api", State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
		),
		&corev1.Event{
			ObjectMeta:     metav1.ObjectMeta{Name: "loan-server-abc.1", Namespace: "payments"},
			InvolvedObject: corev1.ObjectReference{Kind: "Pod", Name: "loan-server-abc"},
			Type:           corev1.EventTypeWarning,
			Reason:         "Unhealthy",
			Message:        "Readiness probe failed: HTTP probe failed with statuscode: 503",
		},
	)

	c := NewKubernetesCollectorWithClient(client, config.KubernetesConfig{Namespace: "payments"})
	fixed := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	raws, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 4)

	byActivity := map[string]models.RawAlert{}
	for _, raw := range raws {
		byActivity[raw["activity_name"].(string)] = raw
		assert.Equal(t, models.FormatTimestamp(fixed), raw["timestamp"])
		assert.Equal(t, "kubernetes", raw["source"])
		assert.Equal(t, raws[0]["execution_id"], raw["execution_id"])
	}

	ready := byActivity["account-server/api"]
	assert.Equal(t, "success", ready["status"])

	crashing := byActivity["account-server/sidecar"]
	assert.Equal(t, "failure", crashing["status"])
	assert.Equal(t, 4, crashing["retry_count"])
	assert.Equal(t, "error", crashing["previous_status"])
	assert.Equal(t, 8, crashing["severity"])
	assert.Equal(t, "CrashLoopBackOff: back-off 5m0s restarting failed container", crashing["error_message"])

	killed := byActivity["batch-job-x1/worker"]
	assert.Equal(t, "error", killed["status"])
	assert.Equal(t, "Error (exit code 137)", killed["error_message"])

	notReady := byActivity["loan-server/api"]
	assert.Equal(t, "failure", notReady["status"])
	assert.Equal(t, "Unhealthy: Readiness probe failed: HTTP probe failed with statuscode: 503", notReady["error_message"])
	assert.Equal(t, "k8s://payments/pods/loan-server-abc", notReady["url"])
}

func TestKubernetesDefaultsToPodName(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("web-1", nil, corev1.ContainerStatus{Name: "nginx", Ready: true}),
	)
	c := NewKubernetesCollectorWithClient(client, config.KubernetesConfig{})

	raws, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "web-1/nginx", raws[0]["activity_name"])
	assert.Equal(t, 0, raws[0]["retry_count"])
	assert.NotContains(t, raws[0], "previous_status")
}

func TestKubernetesNotReadyWithoutEvents(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("web-2", nil, corev1.ContainerStatus{Name: "nginx"}),
	)
	c := NewKubernetesCollectorWithClient(client, config.KubernetesConfig{})

	raws, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "failure", raws[0]["status"])
	assert.Equal(t, "container not ready", raws[0]["error_message"])
}
