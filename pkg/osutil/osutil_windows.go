//go:build windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// IsAdmin reports whether the process runs elevated. On error it reports true so that
// callers err on the side of restricting access.
func IsAdmin() (bool, error) {
	adminSid, sidErr := GetBuiltInSid(windows.DOMAIN_ALIAS_RID_ADMINS)
	if sidErr != nil {
		return true, sidErr
	}
	defer func() { _ = windows.FreeSid(adminSid) }()

	// A zero token makes IsMember check the effective (possibly filtered) token of the calling thread.
	member, memberErr := windows.Token(0).IsMember(adminSid)
	if memberErr != nil {
		return true, fmt.Errorf("could not check Administrators membership: %w", memberErr)
	}
	return member, nil
}

// GetBuiltInSid returns the SID of a BUILTIN group. The caller frees it with windows.FreeSid.
func GetBuiltInSid(domainAliasRid uint32) (*windows.SID, error) {
	var sid *windows.SID
	allocErr := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY, 2,
		windows.SECURITY_BUILTIN_DOMAIN_RID, domainAliasRid,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if allocErr != nil {
		return nil, allocErr
	}
	return sid, nil
}
