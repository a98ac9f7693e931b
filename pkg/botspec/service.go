// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package botspec

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/coingro/coingro-controller/pkg/config"
)

const (
	apiPortName = "api-server-port"
	// servicePort is the port the bot API is reachable on inside the
	// cluster, api_url relies on it being the plain HTTP port.
	servicePort = 80
)

// BuildService renders the Service fronting one bot's API server.
func BuildService(settings config.Settings, botID string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      botID,
			Namespace: settings.Namespace,
			Labels:    ServiceLabels(botID),
		},
		Spec: corev1.ServiceSpec{
			Selector: NewLabels(botID),
			Ports: []corev1.ServicePort{
				{
					Name:       apiPortName,
					Protocol:   corev1.ProtocolTCP,
					Port:       servicePort,
					TargetPort: intstr.FromInt(settings.CGAPIServerPort),
				},
			},
		},
	}
}

// APIURL returns the in-cluster base URL of a bot's API, honoring the
// configured router prefix.
func APIURL(settings config.Settings, botID string) string {
	prefix := strings.Trim(settings.CGAPIRouterPrefix, "/")
	if prefix == "" {
		return "http://" + botID
	}
	return "http://" + botID + "/" + prefix
}
