// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package k8s

import (
	"context"

	corev1 "k8s.io/api/core/v1"

	"github.com/coingro/coingro-controller/pkg/botspec"
)

// CreateBotInstance renders and creates the Service and Pod backing a bot.
// Errors are logged and swallowed so one broken bot cannot stall a reconcile
// pass over the others; the returned pod is nil in that case.
func (c *Client) CreateBotInstance(ctx context.Context, botID string, botConfig map[string]interface{}, envOverrides map[string]string) *corev1.Pod {
	svc := botspec.BuildService(c.settings, botID)
	if err := c.CreateService(ctx, svc); err != nil {
		log.Error(err, "Could not create bot service", "bot_id", botID)
		return nil
	}

	pod, err := botspec.BuildPod(c.settings, botID, botConfig, envOverrides)
	if err != nil {
		log.Error(err, "Could not render bot pod", "bot_id", botID)
		return nil
	}
	if err := c.CreatePod(ctx, pod); err != nil {
		log.Error(err, "Could not create bot pod", "bot_id", botID)
		return nil
	}
	return pod
}

// ReplaceBotInstance swaps a bot's Pod for a freshly rendered one, keeping
// the Service in place. Errors are logged and swallowed like in
// CreateBotInstance.
func (c *Client) ReplaceBotInstance(ctx context.Context, botID string, botConfig map[string]interface{}, envOverrides map[string]string) *corev1.Pod {
	pod, err := botspec.BuildPod(c.settings, botID, botConfig, envOverrides)
	if err != nil {
		log.Error(err, "Could not render bot pod", "bot_id", botID)
		return nil
	}
	if err := c.ReplacePod(ctx, pod); err != nil {
		log.Error(err, "Could not replace bot pod", "bot_id", botID)
		return nil
	}
	return pod
}

// DeleteBotInstance removes the Pod and Service backing a bot. The per-user
// data volume is left alone, soft-deleted bots may come back.
func (c *Client) DeleteBotInstance(ctx context.Context, botID string) error {
	if err := c.DeletePod(ctx, botID); err != nil {
		return err
	}
	return c.DeleteService(ctx, botID)
}
