// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"encoding/json"
	"strconv"
)

// Owners returns the account ids listed in data["_deposit"]["owners"].
// Entries that are not integral numbers are skipped.
func Owners(data map[string]any) []int64 {
	deposit, ok := data["_deposit"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := deposit["owners"].([]any)
	if !ok {
		return nil
	}
	owners := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			if n == float64(int64(n)) {
				owners = append(owners, int64(n))
			}
		case int64:
			owners = append(owners, n)
		case int:
			owners = append(owners, int64(n))
		case json.Number:
			if id, err := n.Int64(); err == nil {
				owners = append(owners, id)
			}
		case string:
			if id, err := strconv.ParseInt(n, 10, 64); err == nil {
				owners = append(owners, id)
			}
		}
	}
	return owners
}
