// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package qop

import (
	"context"
	"log/slog"
	"slices"
)

// ServerInfo describes the gateway implementation and what it supports.
type ServerInfo struct {
	Implementation ImplementationDetails
	Capabilities   []string
}

// Has reports whether the server advertises capability.
func (i ServerInfo) Has(capability string) bool {
	return slices.Contains(i.Capabilities, capability)
}

// InfoServiceApi wraps the info service.
type InfoServiceApi struct {
	*BaseApi
}

func NewInfoServiceApi(ctx context.Context, executor *Executor, details ConnectionDetails, logger *slog.Logger) (*InfoServiceApi, error) {
	base, err := NewBaseApi(ctx, executor, InfoService, details, logger)
	if err != nil {
		return nil, err
	}
	return &InfoServiceApi{BaseApi: base}, nil
}

func (a *InfoServiceApi) GetInfo(ctx context.Context) (ServerInfo, error) {
	var resp GetInfoResponse
	if err := a.Call(ctx, MethodGetInfo, &Empty{}, &resp); err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{Implementation: resp.Implementation, Capabilities: resp.Capabilities}, nil
}
