// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

//go:build integration

// Package integration provides end-to-end tests for docaccess against an
// in-process access authority.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}
