// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goetims implements a client and service for transmitting fiscal
documents to the Kenya Revenue Authority's eTIMS platform through an
Online Sales Control Unit (OSCU).

# Overview

go-etims builds the canonical JSON bodies for sales invoices, purchase
confirmations and item registrations, signs each request with the
device's communication key, submits it synchronously over HTTPS, and
interprets the authority's response envelope. Sequential invoice numbers
are allocated per device and document kind, and rolled back whenever an
attempt fails before confirmation, so the reported sequence never has
gaps.

# Package Structure

The library is organized into the following packages:

	github.com/sirosfoundation/go-etims/pkg/oscu      - Transmission orchestrator (inbound API)
	github.com/sirosfoundation/go-etims/pkg/payload   - Canonical payload construction and tax bucketing
	github.com/sirosfoundation/go-etims/pkg/signer    - HMAC-SHA256 request signing
	github.com/sirosfoundation/go-etims/pkg/transport - Signed HTTP submission and response interpretation
	github.com/sirosfoundation/go-etims/pkg/sequence  - Gap-free fiscal number allocation
	github.com/sirosfoundation/go-etims/pkg/protocol  - Wire vocabulary: operations, envelopes, timestamps
	github.com/sirosfoundation/go-etims/pkg/device    - Device credentials and environments
	github.com/sirosfoundation/go-etims/pkg/fiscal    - Ledger document and result types

The internal packages wire the library into a service: an HTTP server,
pluggable storage (in-memory, MongoDB, SQLite), credential providers
(plain files or passphrase-sealed blobs) and YAML configuration. The
entry point is cmd/etimsd.

# Quick Start

To transmit a sales invoice against the built-in demo responder:

	import (
	    "github.com/sirosfoundation/go-etims/internal/storage/memory"
	    "github.com/sirosfoundation/go-etims/pkg/device"
	    "github.com/sirosfoundation/go-etims/pkg/fiscal"
	    "github.com/sirosfoundation/go-etims/pkg/oscu"
	)

	cred := &device.Credential{
	    TIN:           "P000000045R",
	    BranchID:      "00",
	    CMCKey:        "base64-communication-key",
	    ControlUnitID: "KRACU0100000001",
	    Environment:   device.EnvDemo,
	}

	store := memory.NewStore()
	client, _ := oscu.NewClient(&oscu.Config{Store: store, Counters: store})

	doc := &fiscal.Document{
	    ID:   "INV-0001",
	    Kind: fiscal.KindSale,
	    // ... counterparty and lines
	}
	result, err := client.SubmitSaleInvoice(ctx, cred, doc)

# Environments

Three routing targets exist: production and test map to the authority's
endpoints, while demo is answered in process by a deterministic
responder that never touches the network. The demo responder confirms
every well-formed submission, which makes it suitable for integration
tests and local development.

# License

BSD-2-Clause License
*/
package goetims
