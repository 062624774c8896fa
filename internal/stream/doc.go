// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns raw upstream response bodies into one normalized
// event sequence.
//
// The pipeline is Decoder (bytes to frames), Normalize (frame to events),
// and Stream (pull iterator with a single terminal event):
//
//	s := stream.New(resp.Body, stream.FormatSSE, stream.SchemaOpenAI)
//	defer s.Close()
//	for {
//	    ev, err := s.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// Malformed frames are skipped. A body that ends without a finish or error
// event yields a synthesized finish with reason unknown.
package stream
