// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package k8s

import (
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Scheme returns the scheme used by clients created in this package.
// The controller only deals in core types (Pods, Services, PVCs), so the
// client-go scheme is sufficient.
func Scheme() *runtime.Scheme {
	return clientgoscheme.Scheme
}

type Client = client.Client
