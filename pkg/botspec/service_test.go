// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package botspec

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/coingro/coingro-controller/pkg/config"
)

func testSettings() config.Settings {
	return config.Settings{
		Namespace:         "coingro",
		CGImage:           "coingro/coingro:1.2.3",
		CGVersion:         "1.2.3",
		CGAPIServerPort:   8080,
		CGAPIRouterPrefix: "api/v1",
	}
}

func TestBuildService(t *testing.T) {
	svc := BuildService(testSettings(), "bot-1a2b3c4d")

	expected := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "bot-1a2b3c4d",
			Namespace: "coingro",
			Labels: map[string]string{
				"name":    "bot-1a2b3c4d",
				"creator": "coingro-controller",
			},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				"name":    "bot-1a2b3c4d",
				"run":     "bot-1a2b3c4d",
				"app":     "coingro-bot",
				"creator": "coingro-controller",
			},
			Ports: []corev1.ServicePort{
				{
					Name:       "api-server-port",
					Protocol:   corev1.ProtocolTCP,
					Port:       80,
					TargetPort: intstr.FromInt(8080),
				},
			},
		},
	}
	if diff := deep.Equal(svc, expected); diff != nil {
		t.Error(diff)
	}
}

func TestAPIURL(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{
			name:   "with router prefix",
			prefix: "api/v1",
			want:   "http://bot-1a2b3c4d/api/v1",
		},
		{
			name:   "prefix with surrounding slashes",
			prefix: "/api/v1/",
			want:   "http://bot-1a2b3c4d/api/v1",
		},
		{
			name:   "no prefix",
			prefix: "",
			want:   "http://bot-1a2b3c4d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			settings.CGAPIRouterPrefix = tt.prefix
			assert.Equal(t, tt.want, APIURL(settings, "bot-1a2b3c4d"))
		})
	}
}

func TestBuildNamespace(t *testing.T) {
	ns := BuildNamespace("coingro")
	assert.Equal(t, "coingro", ns.Name)
	assert.Equal(t, map[string]string{
		"name":    "coingro",
		"creator": "coingro-controller",
	}, ns.Labels)
}
