// Copyright 2025 Magnus Pierre
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

package csv

import "bytes"

// candidateDelimiters are tried in order; ties keep the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// DetectDelimiter guesses the field delimiter from a single line by counting
// the occurrences of common separators. It defaults to comma.
func DetectDelimiter(line []byte) rune {
	maxCount := 0
	detected := ','
	for _, sep := range candidateDelimiters {
		if count := bytes.Count(line, []byte(string(sep))); count > maxCount {
			maxCount = count
			detected = sep
		}
	}
	return detected
}

// DelimiterName returns a human-readable name for the delimiter.
func DelimiterName(sep rune) string {
	switch sep {
	case ',':
		return "comma"
	case ';':
		return "semicolon"
	case '\t':
		return "tab"
	case '|':
		return "pipe"
	default:
		return string(sep)
	}
}
