package collectors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/emirozbir/micro-triage/internal/config"
	"github.com/emirozbir/micro-triage/internal/models"
)

// KubernetesCollector inspects pod container statuses and reports one event
// per container.
type KubernetesCollector struct {
	clientset     kubernetes.Interface
	namespace     string
	labelSelector string
	now           func() time.Time
}

func NewKubernetesCollector(cfg *config.Config) (*KubernetesCollector, error) {
	var k8sConfig *rest.Config
	var err error

	if cfg.Kubernetes.Kubeconfig != "" {
		// Use kubeconfig file
		k8sConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubernetes.Kubeconfig)
	} else {
		// Use in-cluster config
		k8sConfig, err = rest.InClusterConfig()
		if err != nil {
			// Fallback to default kubeconfig
			loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
			configOverrides := &clientcmd.ConfigOverrides{}
			if cfg.Kubernetes.Context != "" {
				configOverrides.CurrentContext = cfg.Kubernetes.Context
			}
			k8sConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
				loadingRules, configOverrides).ClientConfig()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(k8sConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewKubernetesCollectorWithClient(clientset, cfg.Kubernetes), nil
}

// NewKubernetesCollectorWithClient builds a collector on an existing client.
func NewKubernetesCollectorWithClient(clientset kubernetes.Interface, cfg config.KubernetesConfig) *KubernetesCollector {
	return &KubernetesCollector{
		clientset:     clientset,
		namespace:     cfg.Namespace,
		labelSelector: cfg.LabelSelector,
		now:           time.Now,
	}
}

func (k *KubernetesCollector) Name() string { return "kubernetes" }

// Collect lists pods and turns each container status into a raw event. An
// empty namespace means all namespaces.
func (k *KubernetesCollector) Collect(ctx context.Context) ([]models.RawAlert, error) {
	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: k.labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	executionID := uuid.NewString()
	timestamp := models.FormatTimestamp(k.now())

	var raws []models.RawAlert
	for i := range pods.Items {
		pod := &pods.Items[i]
		for _, cs := range pod.Status.ContainerStatuses {
			raw := containerEvent(pod, cs)
			raw["execution_id"] = executionID
			raw["timestamp"] = timestamp

			if raw["status"] != string(models.StatusSuccess) && raw["error_message"] == "" {
				raw["error_message"] = k.latestWarning(ctx, pod, "container not ready")
			}
			raws = append(raws, raw)
		}
	}

	return raws, nil
}

func containerEvent(pod *corev1.Pod, cs corev1.ContainerStatus) models.RawAlert {
	raw := models.RawAlert{
		"alert_id":      fmt.Sprintf("%s/%s/%s/%d", pod.Namespace, pod.Name, cs.Name, cs.RestartCount),
		"activity_name": fmt.Sprintf("%s/%s", workloadName(pod), cs.Name),
		"url":           fmt.Sprintf("k8s://%s/pods/%s", pod.Namespace, pod.Name),
		"source":        "kubernetes",
		"retry_count":   int(cs.RestartCount),
		"error_message": "",
	}
	if cs.LastTerminationState.Terminated != nil && cs.LastTerminationState.Terminated.ExitCode != 0 {
		raw["previous_status"] = string(models.StatusError)
	}

	state := cs.State
	switch {
	case cs.Ready:
		raw["status"] = string(models.StatusSuccess)
	case state.Waiting != nil && state.Waiting.Reason != "":
		raw["status"] = string(models.StatusFailure)
		raw["error_message"] = joinReason(state.Waiting.Reason, state.Waiting.Message)
		if strings.Contains(state.Waiting.Reason, "CrashLoopBackOff") {
			raw["severity"] = 8
		}
	case state.Terminated != nil && state.Terminated.ExitCode != 0:
		raw["status"] = string(models.StatusError)
		raw["error_message"] = joinReason(
			fmt.Sprintf("%s (exit code %d)", state.Terminated.Reason, state.Terminated.ExitCode),
			state.Terminated.Message,
		)
	case state.Terminated != nil:
		// completed run-to-completion containers
		raw["status"] = string(models.StatusSuccess)
	default:
		raw["status"] = string(models.StatusFailure)
	}

	return raw
}

func workloadName(pod *corev1.Pod) string {
	for _, key := range []string{"app.kubernetes.io/name", "app"} {
		if name := pod.Labels[key]; name != "" {
			return name
		}
	}
	return pod.Name
}

func joinReason(reason, message string) string {
	if message == "" {
		return reason
	}
	return reason + ": " + message
}

// latestWarning returns the newest Warning event message for the pod, or
// fallback when there is none.
func (k *KubernetesCollector) latestWarning(ctx context.Context, pod *corev1.Pod, fallback string) string {
	fieldSelector := fmt.Sprintf("involvedObject.name=%s,involvedObject.kind=Pod", pod.Name)

	eventList, err := k.clientset.CoreV1().Events(pod.Namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fieldSelector,
	})
	if err != nil {
		return fallback
	}

	var warnings []corev1.Event
	for _, event := range eventList.Items {
		if event.Type == corev1.EventTypeWarning && event.InvolvedObject.Name == pod.Name {
			warnings = append(warnings, event)
		}
	}
	if len(warnings) == 0 {
		return fallback
	}

	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].LastTimestamp.After(warnings[j].LastTimestamp.Time)
	})
	return joinReason(warnings[0].Reason, warnings[0].Message)
}
