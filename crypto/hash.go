// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/sha512"

	"github.com/luxfi/ids"
)

// HashPreprocessedKeys returns the 32-byte digest voted on during
// aggregation: SHA-384 over the preprocessed key set, truncated. The digest
// family is fixed per deployment.
func HashPreprocessedKeys(preprocessedKeys []byte) ids.ID {
	digest := sha512.Sum384(preprocessedKeys)

	var id ids.ID
	copy(id[:], digest[:])
	return id
}
