// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package botspec renders the Kubernetes resources backing one coingro bot.
// All functions are pure: they build specs from configuration and perform no
// cluster I/O.
package botspec

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// AppLabelValue identifies bot pods among everything else in the namespace.
	AppLabelValue = "coingro-bot"
	// CreatorLabelValue marks resources owned by this controller.
	CreatorLabelValue = "coingro-controller"
)

// NewLabels returns the labels applied to a bot Pod. The Service selector
// matches on the same set.
func NewLabels(botID string) map[string]string {
	return map[string]string{
		"name":    botID,
		"run":     botID,
		"app":     AppLabelValue,
		"creator": CreatorLabelValue,
	}
}

// ServiceLabels returns the labels applied to a bot Service.
func ServiceLabels(botID string) map[string]string {
	return map[string]string{
		"name":    botID,
		"creator": CreatorLabelValue,
	}
}

// BuildNamespace returns the namespace all bot resources live in.
func BuildNamespace(name string) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				"name":    name,
				"creator": CreatorLabelValue,
			},
		},
	}
}
