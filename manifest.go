// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

// SetManifest installs raw as the side-by-side assembly manifest, at the
// well-known location Windows expects: (RT_MANIFEST, id=1, lang=neutral).
// raw is the manifest XML, verbatim.
func (pe *File) SetManifest(raw []byte) {
	pe.InsertResource(ResourceKey{Type: RTManifest, ID: 1, Lang: LangNeutral}, raw)
}

// GetManifest returns the installed manifest XML, or (nil, false) if none.
func (pe *File) GetManifest() ([]byte, bool) {
	return pe.GetResource(ResourceKey{Type: RTManifest, ID: 1, Lang: LangNeutral})
}
