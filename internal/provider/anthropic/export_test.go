// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package anthropic

// ErrorType exposes errorType for white-box testing.
var ErrorType = errorType
