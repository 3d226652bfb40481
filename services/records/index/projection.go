// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

// Project returns the indexable form of a record document: the internal
// "_files" key is renamed to "files". doc is not modified. Projecting an
// already projected document returns an equal copy.
func Project(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	if files, ok := out["_files"]; ok {
		out["files"] = files
		delete(out, "_files")
	}
	return out
}
