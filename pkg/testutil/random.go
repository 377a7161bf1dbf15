/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package testutil

import (
	"crypto/rand"
	"math/big"
	"testing"
)

const lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"

// GetRandLetters returns count random lowercase letters.
func GetRandLetters(t *testing.T, count int) string {
	t.Helper()
	retval := make([]byte, count)

	for i := range retval {
		n, randErr := rand.Int(rand.Reader, big.NewInt(int64(len(lowercaseLetters))))
		if randErr != nil {
			t.Fatalf("Could not create random string: %v", randErr)
		}
		retval[i] = lowercaseLetters[n.Int64()]
	}

	return string(retval)
}
