// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package botspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/coingro/coingro-controller/pkg/config"
)

const (
	containerName = "coingro-container"

	// BotUserDataDir is where the bot container keeps its user data.
	BotUserDataDir = "/coingro/user_data"
	// ConfigSaveFile is the file name the serialized bot configuration is
	// written to before the trading process starts.
	ConfigSaveFile = "config_save.json"
	// StrategiesMountPath is where the shared strategies volume is mounted.
	StrategiesMountPath = "/coingro/strategies/"

	strategiesVolumeName = "coingro-strategies"
	tradeBinary          = "coingro"
	configDelimiter      = "CG_CONFIG_EOF"

	livenessInitialDelaySeconds = 600
	livenessPeriodSeconds       = 120
)

// BuildPod renders the Pod running one bot. The bot configuration document is
// written to disk by the container entrypoint before the trading process is
// exec'd, so a bot always starts from the configuration the controller last
// knew about.
func BuildPod(settings config.Settings, botID string, botConfig map[string]interface{}, envOverrides map[string]string) (*corev1.Pod, error) {
	entrypoint, err := bootstrapCommand(botConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "could not render bot configuration for %s", botID)
	}

	container := corev1.Container{
		Name:    containerName,
		Image:   settings.CGImage,
		Command: []string{"/bin/sh", "-c"},
		Args:    []string{entrypoint},
		Env:     buildEnv(settings, botID, envOverrides),
		Ports: []corev1.ContainerPort{
			{
				Name:          apiPortName,
				ContainerPort: int32(settings.CGAPIServerPort),
				Protocol:      corev1.ProtocolTCP,
			},
		},
		LivenessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: "api/v1/ping",
					Port: intstr.FromInt(settings.CGAPIServerPort),
				},
			},
			InitialDelaySeconds: livenessInitialDelaySeconds,
			PeriodSeconds:       livenessPeriodSeconds,
			FailureThreshold:    1,
		},
		Resources: defaultResources(),
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      botID,
			Namespace: settings.Namespace,
			Labels:    NewLabels(botID),
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{container},
		},
	}

	if settings.CGStrategiesPVC != "" {
		pod.Spec.Volumes = []corev1.Volume{
			{
				Name: strategiesVolumeName,
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: settings.CGStrategiesPVC,
						ReadOnly:  true,
					},
				},
			},
		}
		pod.Spec.Containers[0].VolumeMounts = []corev1.VolumeMount{
			{
				Name:      strategiesVolumeName,
				MountPath: StrategiesMountPath,
				ReadOnly:  true,
			},
		}
	}

	if settings.CGImagePullSecrets != "" {
		pod.Spec.ImagePullSecrets = []corev1.LocalObjectReference{
			{Name: settings.CGImagePullSecrets},
		}
	}

	if settings.CGUserGroupID != nil {
		pod.Spec.SecurityContext = &corev1.PodSecurityContext{
			FSGroup: settings.CGUserGroupID,
		}
	}

	return pod, nil
}

// buildEnv merges the configured bot environment with per-call overrides and
// the fixed bot identity variables, later entries winning. The result is
// sorted by name to keep rendered pods stable across reconciliations.
func buildEnv(settings config.Settings, botID string, envOverrides map[string]string) []corev1.EnvVar {
	merged := make(map[string]string, len(settings.CGEnvVars)+len(envOverrides)+2)
	for key, value := range settings.CGEnvVars {
		merged[key] = fmt.Sprintf("%v", value)
	}
	for key, value := range envOverrides {
		merged[key] = value
	}
	merged["CG_BOT_ID"] = botID
	merged["COINGRO__LOGFILE"] = "default"

	names := maps.Keys(merged)
	slices.Sort(names)

	env := make([]corev1.EnvVar, 0, len(names))
	for _, name := range names {
		env = append(env, corev1.EnvVar{Name: name, Value: merged[name]})
	}
	return env
}

// bootstrapCommand returns the shell entrypoint that persists the bot
// configuration and execs the trading process.
func bootstrapCommand(botConfig map[string]interface{}) (string, error) {
	doc, err := marshalBotConfig(botConfig)
	if err != nil {
		return "", err
	}
	configDir := path.Join(BotUserDataDir, "config")
	configPath := path.Join(configDir, ConfigSaveFile)
	return fmt.Sprintf("mkdir -p %s && cat <<'%s' > %s\n%s\n%s\nexec %s trade",
		configDir, configDelimiter, configPath, doc, configDelimiter, tradeBinary), nil
}

// marshalBotConfig pretty-prints the configuration document, keeping
// non-ASCII characters intact so pair names and currencies survive verbatim.
func marshalBotConfig(botConfig map[string]interface{}) (string, error) {
	if botConfig == nil {
		botConfig = map[string]interface{}{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(botConfig); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func defaultResources() corev1.ResourceRequirements {
	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("100m"),
			corev1.ResourceMemory: resource.MustParse("256Mi"),
		},
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("500m"),
			corev1.ResourceMemory: resource.MustParse("512Mi"),
		},
	}
}
