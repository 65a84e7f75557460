package model

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrNotFound covers missing repositories, unresolvable refs, and absent
	// journal files.
	ErrNotFound = goerr.New("not found")

	// ErrNoChatData means no Claude Code messages fell inside the commit
	// window. The pipeline writes nothing and the run fails so a silent gap
	// never masquerades as success.
	ErrNoChatData = goerr.New("no chat data in commit window")
)
