package storage

// Package storage provides the optional event-history layer.
//
// It records fired change events and their delivery outcomes so operators can
// audit what was notified and when. It is NOT the poller's state cache — that
// cache is memory-resident by design and rebuilt from a fresh baseline poll
// on every start.
