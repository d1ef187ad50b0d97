// Copyright 2025 The NLP Odyssey Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import "time"

// TimeISO returns the current UTC time as an RFC 3339 string with
// nanosecond precision, the format used for exported timestamps.
func TimeISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// GenTraceID generates a new trace ID using the global trace provider.
func GenTraceID() string {
	return GetTraceProvider().GenTraceID()
}

// GenSpanID generates a new span ID using the global trace provider.
func GenSpanID() string {
	return GetTraceProvider().GenSpanID()
}

// GenGroupID generates a new group ID using the global trace provider.
func GenGroupID() string {
	return GetTraceProvider().GenGroupID()
}
