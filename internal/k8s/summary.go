package k8s

import (
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PodSummary is the flattened view of a pod shown in the GUI.
type PodSummary struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace"`
	Status            string            `json:"status"`
	Age               string            `json:"age"`
	CreationTimestamp *string           `json:"creation_timestamp"`
	Containers        int               `json:"containers"`
	Restarts          int32             `json:"restarts"`
	Node              string            `json:"node"`
	QoS               string            `json:"qos"`
	ControlledBy      string            `json:"controlled_by"`
	Labels            map[string]string `json:"labels"`
	Annotations       map[string]string `json:"annotations"`
	PodIP             string            `json:"pod_ip"`
	HostIP            string            `json:"host_ip"`
	ServiceAccount    string            `json:"service_account"`
	PriorityClass     string            `json:"priority_class"`
	ContainerDetails  []ContainerInfo   `json:"container_details"`
	Volumes           []VolumeInfo      `json:"volumes"`
	Conditions        []PodCondition    `json:"conditions"`
}

// ContainerInfo describes one container of a pod.
type ContainerInfo struct {
	Name            string          `json:"name"`
	Image           string          `json:"image"`
	ImagePullPolicy string          `json:"image_pull_policy"`
	Ready           bool            `json:"ready"`
	RestartCount    int32           `json:"restart_count"`
	State           string          `json:"state"`
	CPURequest      *string         `json:"cpu_request"`
	CPULimit        *string         `json:"cpu_limit"`
	MemoryRequest   *string         `json:"memory_request"`
	MemoryLimit     *string         `json:"memory_limit"`
	Ports           []ContainerPort `json:"ports"`
	Env             []EnvVar        `json:"env"`
	VolumeMounts    []VolumeMount   `json:"volume_mounts"`
	Probes          []ProbeInfo     `json:"probes"`
}

type ContainerPort struct {
	Name          *string `json:"name"`
	ContainerPort int32   `json:"container_port"`
	HostPort      *int32  `json:"host_port"`
	Protocol      string  `json:"protocol"`
}

// EnvVar is a container environment variable. Values sourced from config
// maps or secrets are never resolved.
type EnvVar struct {
	Name      string  `json:"name"`
	Value     *string `json:"value"`
	ValueFrom *string `json:"value_from"`
}

type VolumeMount struct {
	Name      string  `json:"name"`
	MountPath string  `json:"mount_path"`
	SubPath   *string `json:"sub_path"`
	ReadOnly  bool    `json:"read_only"`
}

// ProbeInfo describes a liveness, readiness or startup probe.
type ProbeInfo struct {
	ProbeType           string `json:"probe_type"`
	HandlerType         string `json:"handler_type"`
	Details             string `json:"details"`
	InitialDelaySeconds int32  `json:"initial_delay_seconds"`
	PeriodSeconds       int32  `json:"period_seconds"`
	TimeoutSeconds      int32  `json:"timeout_seconds"`
	SuccessThreshold    int32  `json:"success_threshold"`
	FailureThreshold    int32  `json:"failure_threshold"`
}

type VolumeInfo struct {
	Name       string `json:"name"`
	VolumeType string `json:"volume_type"`
}

type PodCondition struct {
	ConditionType      string  `json:"condition_type"`
	Status             string  `json:"status"`
	Reason             *string `json:"reason"`
	Message            *string `json:"message"`
	LastTransitionTime *string `json:"last_transition_time"`
}

const valueFromPlaceholder = "(from ConfigMap/Secret)"

// SummarizePod flattens pod into a PodSummary. Ages are relative to now.
func SummarizePod(pod *corev1.Pod, now time.Time) PodSummary {
	s := PodSummary{
		Name:             pod.Name,
		Namespace:        pod.Namespace,
		Status:           string(pod.Status.Phase),
		Node:             pod.Spec.NodeName,
		QoS:              string(pod.Status.QOSClass),
		ControlledBy:     "-",
		Labels:           copyMap(pod.Labels),
		Annotations:      copyMap(pod.Annotations),
		PodIP:            orDefault(pod.Status.PodIP, "-"),
		HostIP:           orDefault(pod.Status.HostIP, "-"),
		ServiceAccount:   orDefault(pod.Spec.ServiceAccountName, "default"),
		PriorityClass:    orDefault(pod.Spec.PriorityClassName, "-"),
		ContainerDetails: make([]ContainerInfo, 0, len(pod.Spec.Containers)),
		Volumes:          make([]VolumeInfo, 0, len(pod.Spec.Volumes)),
		Conditions:       make([]PodCondition, 0, len(pod.Status.Conditions)),
	}

	if !pod.CreationTimestamp.IsZero() {
		s.Age = FormatAge(now.Sub(pod.CreationTimestamp.Time))
		s.CreationTimestamp = timestamp(pod.CreationTimestamp)
	}

	if len(pod.OwnerReferences) > 0 {
		owner := pod.OwnerReferences[0]
		s.ControlledBy = owner.Kind + "/" + owner.Name
	}

	s.Containers = len(pod.Status.ContainerStatuses)
	statuses := make(map[string]corev1.ContainerStatus, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		s.Restarts += cs.RestartCount
		statuses[cs.Name] = cs
	}

	for _, c := range pod.Spec.Containers {
		cs, found := statuses[c.Name]
		s.ContainerDetails = append(s.ContainerDetails, summarizeContainer(c, cs, found))
	}

	for _, v := range pod.Spec.Volumes {
		s.Volumes = append(s.Volumes, VolumeInfo{Name: v.Name, VolumeType: volumeType(v)})
	}

	for _, c := range pod.Status.Conditions {
		s.Conditions = append(s.Conditions, PodCondition{
			ConditionType:      string(c.Type),
			Status:             string(c.Status),
			Reason:             optional(c.Reason),
			Message:            optional(c.Message),
			LastTransitionTime: timestamp(c.LastTransitionTime),
		})
	}

	return s
}

func summarizeContainer(c corev1.Container, cs corev1.ContainerStatus, found bool) ContainerInfo {
	info := ContainerInfo{
		Name:            c.Name,
		Image:           c.Image,
		ImagePullPolicy: orDefault(string(c.ImagePullPolicy), string(corev1.PullIfNotPresent)),
		State:           "Unknown",
		CPURequest:      quantity(c.Resources.Requests, corev1.ResourceCPU),
		CPULimit:        quantity(c.Resources.Limits, corev1.ResourceCPU),
		MemoryRequest:   quantity(c.Resources.Requests, corev1.ResourceMemory),
		MemoryLimit:     quantity(c.Resources.Limits, corev1.ResourceMemory),
		Ports:           make([]ContainerPort, 0, len(c.Ports)),
		Env:             make([]EnvVar, 0, len(c.Env)),
		VolumeMounts:    make([]VolumeMount, 0, len(c.VolumeMounts)),
		Probes:          make([]ProbeInfo, 0, 3),
	}

	if found {
		info.Ready = cs.Ready
		info.RestartCount = cs.RestartCount
		info.State = containerState(cs.State)
	}

	for _, p := range c.Ports {
		port := ContainerPort{
			Name:          optional(p.Name),
			ContainerPort: p.ContainerPort,
			Protocol:      orDefault(string(p.Protocol), string(corev1.ProtocolTCP)),
		}
		if p.HostPort != 0 {
			hostPort := p.HostPort
			port.HostPort = &hostPort
		}
		info.Ports = append(info.Ports, port)
	}

	for _, e := range c.Env {
		env := EnvVar{Name: e.Name, Value: optional(e.Value)}
		if e.ValueFrom != nil {
			placeholder := valueFromPlaceholder
			env.ValueFrom = &placeholder
		}
		info.Env = append(info.Env, env)
	}

	for _, m := range c.VolumeMounts {
		info.VolumeMounts = append(info.VolumeMounts, VolumeMount{
			Name:      m.Name,
			MountPath: m.MountPath,
			SubPath:   optional(m.SubPath),
			ReadOnly:  m.ReadOnly,
		})
	}

	for _, probe := range []struct {
		kind  string
		probe *corev1.Probe
	}{
		{"liveness", c.LivenessProbe},
		{"readiness", c.ReadinessProbe},
		{"startup", c.StartupProbe},
	} {
		if probe.probe != nil {
			info.Probes = append(info.Probes, summarizeProbe(probe.kind, probe.probe))
		}
	}

	return info
}

func containerState(state corev1.ContainerState) string {
	switch {
	case state.Running != nil:
		return "Running"
	case state.Waiting != nil:
		return "Waiting: " + orDefault(state.Waiting.Reason, "Waiting")
	case state.Terminated != nil:
		return "Terminated: " + orDefault(state.Terminated.Reason, "Terminated")
	default:
		return "Unknown"
	}
}

// summarizeProbe fills unset probe fields with the API server defaults.
func summarizeProbe(kind string, p *corev1.Probe) ProbeInfo {
	info := ProbeInfo{
		ProbeType:           kind,
		HandlerType:         "unknown",
		InitialDelaySeconds: p.InitialDelaySeconds,
		PeriodSeconds:       orDefaultInt(p.PeriodSeconds, 10),
		TimeoutSeconds:      orDefaultInt(p.TimeoutSeconds, 1),
		SuccessThreshold:    orDefaultInt(p.SuccessThreshold, 1),
		FailureThreshold:    orDefaultInt(p.FailureThreshold, 3),
	}

	switch {
	case p.HTTPGet != nil:
		scheme := orDefault(string(p.HTTPGet.Scheme), string(corev1.URISchemeHTTP))
		path := orDefault(p.HTTPGet.Path, "/")
		info.HandlerType = "httpGet"
		info.Details = fmt.Sprintf("%s://localhost:%s%s", scheme, p.HTTPGet.Port.String(), path)
	case p.TCPSocket != nil:
		info.HandlerType = "tcpSocket"
		info.Details = ":" + p.TCPSocket.Port.String()
	case p.Exec != nil:
		info.HandlerType = "exec"
		info.Details = strings.Join(p.Exec.Command, " ")
	}

	return info
}

func volumeType(v corev1.Volume) string {
	switch {
	case v.ConfigMap != nil:
		return "ConfigMap"
	case v.Secret != nil:
		return "Secret"
	case v.EmptyDir != nil:
		return "EmptyDir"
	case v.HostPath != nil:
		return "HostPath"
	case v.PersistentVolumeClaim != nil:
		return "PersistentVolumeClaim"
	case v.Projected != nil:
		return "Projected"
	case v.DownwardAPI != nil:
		return "DownwardAPI"
	default:
		return "Other"
	}
}

// FormatAge renders d in the largest whole unit: days, hours, minutes or
// seconds. Negative durations (clock skew) render as "0s".
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int64(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	default:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
}

func quantity(list corev1.ResourceList, name corev1.ResourceName) *string {
	q, ok := list[name]
	if !ok {
		return nil
	}
	s := q.String()
	return &s
}

func timestamp(t metav1.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(v, def int32) int32 {
	if v == 0 {
		return def
	}
	return v
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
