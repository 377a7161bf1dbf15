/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package main

import (
	"os"

	cmdutil "github.com/microsoft/deepdbg/internal/commands"
	"github.com/microsoft/deepdbg/internal/ddbgserver/commands"
	"github.com/microsoft/deepdbg/pkg/logger"
	"github.com/microsoft/deepdbg/pkg/osutil"
	"github.com/microsoft/deepdbg/pkg/resiliency"
)

const (
	errCommandError = 1
	errSetup        = 2
	errPanic        = 3
)

func main() {
	log := logger.New("ddbgserver").WithName("ddbgserver")
	defer func() {
		panicErr := resiliency.MakePanicError(recover(), log.Logger)
		if panicErr != nil {
			os.Stderr.WriteString(panicErr.Error() + string(osutil.LineSep()))
			log.Flush()
			os.Exit(errPanic)
		}
	}()

	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	root, err := commands.NewRootCommand(log)
	if err != nil {
		cmdutil.ErrorExit(log, err, errSetup)
	}

	err = root.ExecuteContext(ctx)
	if err != nil {
		cancel()
		cmdutil.ErrorExit(log, err, errCommandError)
	} else {
		log.Flush()
	}
}
