//go:build windows

/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package io

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/microsoft/deepdbg/pkg/osutil"
	"golang.org/x/sys/windows"
)

// OpenFile opens a file like os.OpenFile. When the process runs elevated and the file is opened
// for writing, it is created with an explicit DACL: SYSTEM and Administrators get full access,
// the current user may only delete it and, with PermissionGroupRead, read it.
// Log files written by an elevated front-end may carry the whole environment of the debuggee.
func OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return os.OpenFile(name, flag, perm)
	}

	isAdmin, adminErr := osutil.IsAdmin()
	if adminErr != nil {
		return nil, adminErr
	}
	if !isAdmin {
		return os.OpenFile(name, flag, perm)
	}

	sa, saErr := elevatedSecurityAttributes(perm)
	if saErr != nil {
		return nil, saErr
	}

	path, pathErr := windows.UTF16PtrFromString(name)
	if pathErr != nil {
		return nil, fmt.Errorf("invalid file name '%s': %w", name, pathErr)
	}

	access := uint32(windows.GENERIC_WRITE)
	if flag&os.O_RDWR != 0 {
		access |= windows.GENERIC_READ
	}
	if flag&os.O_APPEND != 0 {
		access = windows.FILE_APPEND_DATA | windows.SYNCHRONIZE
		if flag&os.O_RDWR != 0 {
			access |= windows.GENERIC_READ
		}
	}

	handle, createErr := windows.CreateFile(path, access, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, sa, creationDisposition(flag), windows.FILE_ATTRIBUTE_NORMAL, 0)
	if createErr != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: createErr}
	}

	return os.NewFile(uintptr(handle), name), nil
}

func creationDisposition(flag int) uint32 {
	switch {
	case flag&(os.O_CREATE|os.O_EXCL) == os.O_CREATE|os.O_EXCL:
		return windows.CREATE_NEW
	case flag&(os.O_CREATE|os.O_TRUNC) == os.O_CREATE|os.O_TRUNC:
		return windows.CREATE_ALWAYS
	case flag&os.O_CREATE != 0:
		return windows.OPEN_ALWAYS
	case flag&os.O_TRUNC != 0:
		return windows.TRUNCATE_EXISTING
	default:
		return windows.OPEN_EXISTING
	}
}

func elevatedSecurityAttributes(perm os.FileMode) (*windows.SecurityAttributes, error) {
	var token windows.Token
	if tokenErr := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_QUERY, &token); tokenErr != nil {
		return nil, fmt.Errorf("could not open process token: %w", tokenErr)
	}
	defer token.Close()

	user, userErr := token.GetTokenUser()
	if userErr != nil {
		return nil, fmt.Errorf("could not get token user: %w", userErr)
	}

	systemSid, systemErr := windows.CreateWellKnownSid(windows.WinLocalSystemSid)
	if systemErr != nil {
		return nil, fmt.Errorf("could not create SYSTEM sid: %w", systemErr)
	}

	adminSid, adminErr := osutil.GetBuiltInSid(windows.DOMAIN_ALIAS_RID_ADMINS)
	if adminErr != nil {
		return nil, fmt.Errorf("could not create Administrators sid: %w", adminErr)
	}
	defer func() { _ = windows.FreeSid(adminSid) }()

	// No read access for the user unless requested, so non-elevated processes cannot read the file.
	userAccess := windows.ACCESS_MASK(windows.READ_CONTROL | windows.DELETE | windows.FILE_READ_ATTRIBUTES | windows.FILE_READ_EA)
	if perm&osutil.PermissionGroupRead != 0 {
		userAccess |= windows.FILE_GENERIC_READ
	}
	fullAccess := windows.ACCESS_MASK(windows.STANDARD_RIGHTS_ALL | windows.GENERIC_ALL)

	acl, aclErr := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{
		grant(user.User.Sid, windows.TRUSTEE_IS_USER, userAccess),
		grant(systemSid, windows.TRUSTEE_IS_GROUP, fullAccess),
		grant(adminSid, windows.TRUSTEE_IS_GROUP, fullAccess),
	}, nil)
	if aclErr != nil {
		return nil, fmt.Errorf("could not create acl: %w", aclErr)
	}

	sd, sdErr := windows.NewSecurityDescriptor()
	if sdErr != nil {
		return nil, fmt.Errorf("could not create security descriptor: %w", sdErr)
	}
	if daclErr := sd.SetDACL(acl, true, false); daclErr != nil {
		return nil, fmt.Errorf("could not set dacl: %w", daclErr)
	}
	// Do not inherit entries from the parent directory.
	if controlErr := sd.SetControl(windows.SE_DACL_PROTECTED, windows.SE_DACL_PROTECTED); controlErr != nil {
		return nil, fmt.Errorf("could not protect dacl: %w", controlErr)
	}

	return &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: sd,
	}, nil
}

func grant(sid *windows.SID, trusteeType windows.TRUSTEE_TYPE, access windows.ACCESS_MASK) windows.EXPLICIT_ACCESS {
	return windows.EXPLICIT_ACCESS{
		AccessPermissions: access,
		AccessMode:        windows.GRANT_ACCESS,
		Inheritance:       windows.NO_INHERITANCE,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  trusteeType,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}
}
