/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package runner

import "strings"

// illegalStrings are characters and tokens that are illegal or discouraged in
// filenames (notably on Windows) but can appear in a command or a device
// hostname. Reserved device names and the parent-directory token are included.
var illegalStrings = buildIllegalStrings()

func buildIllegalStrings() []string {
	illegals := []string{
		" ", "<", ">", ":", "\\", "/", "|", "?", "*", "$", `"`,
		"CON", "PRN", "AUX", "NUL", "COM", "LPT", "..",
	}

	for i := 0; i < 32; i++ {
		illegals = append(illegals, string(rune(i)))
	}

	return illegals
}

// SanitizeFilename replaces every illegal character or token with an
// underscore. The result is safe to use as a file or directory name, and the
// function is idempotent.
func SanitizeFilename(name string) string {
	for _, illegal := range illegalStrings {
		name = strings.ReplaceAll(name, illegal, "_")
	}

	return name
}

// DeviceID derives a filesystem-safe device identifier from a session prompt:
// everything before the prompt delimiter, sanitized.
func DeviceID(prompt, delimiter string) string {
	if delimiter != "" {
		if idx := strings.Index(prompt, delimiter); idx >= 0 {
			prompt = prompt[:idx]
		}
	}

	return SanitizeFilename(prompt)
}
