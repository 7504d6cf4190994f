// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/vechain/bonsai/api/trielogs"
	"github.com/vechain/bonsai/bonsai"
	"github.com/vechain/bonsai/chain"
	"github.com/vechain/bonsai/thor"
	"github.com/vechain/bonsai/trielog"
)

// verifyTrieLogs walks the canonical chain up to the persisted head and checks that
// every block has a decodable trie log whose priors continue the values updated by
// earlier logs. The flat state at the head must hold the last updated values.
func verifyTrieLogs(ctx context.Context, w io.Writer, repo *chain.Repository, archive *bonsai.Archive) error {
	headID := archive.Persisted().BlockID()
	endBlockNum := uint32(0)
	if !headID.IsZero() {
		h, err := repo.GetBlockHeader(headID)
		if err != nil {
			return errors.WithMessage(err, "persisted head")
		}
		endBlockNum = h.Number()
	}

	fmt.Fprintln(w, ">> Verifying trie logs <<")
	bar := pb.New64(int64(endBlockNum) + 1).
		Set64(0).
		SetMaxWidth(90)
	bar.Output = w
	bar.Start()
	defer func() { bar.NotPrint = true }()

	var (
		accounts = make(map[thor.Address]*trielog.Account)
		slots    = make(map[slot]*thor.Bytes32)
	)

	for i := uint32(0); i <= endBlockNum; i++ {
		id, err := repo.CanonicalID(i)
		if err != nil {
			return err
		}
		tlog, ok, err := archive.Manager().TrieLog(id)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("block %v: trie log missing", id)
		}
		if tlog.BlockID() != id || tlog.BlockNumber() != i {
			return errors.Errorf("block %v: trie log of block %v #%v", id, tlog.BlockID(), tlog.BlockNumber())
		}

		for _, c := range tlog.Accounts() {
			if last, seen := accounts[c.Address]; seen && !last.Equal(c.Prior) {
				return mismatch(fmt.Sprintf("block %v: prior of account %v", id, c.Address), last, c.Prior)
			}
			accounts[c.Address] = c.Updated
		}
		for _, c := range tlog.Storage() {
			k := slot{c.Address, c.Key}
			if last, seen := slots[k]; seen && !equalValue(last, c.Prior) {
				return mismatch(fmt.Sprintf("block %v: prior of slot %v of %v", id, c.Key, c.Address), last, c.Prior)
			}
			slots[k] = c.Updated
		}
		bar.Add64(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	bar.Finish()

	persisted := archive.Persisted()
	for addr, want := range accounts {
		got, err := persisted.Account(addr)
		if err != nil {
			return err
		}
		if !want.Equal(got) {
			return mismatch(fmt.Sprintf("flat state of account %v", addr), want, got)
		}
	}
	for k, want := range slots {
		got, err := persisted.Storage(k.addr, k.key)
		if err != nil {
			return err
		}
		if !equalValue(want, got) {
			return mismatch(fmt.Sprintf("flat state of slot %v of %v", k.key, k.addr), want, got)
		}
	}
	fmt.Fprintf(w, "verified %v trie logs, %v accounts, %v slots\n", endBlockNum+1, len(accounts), len(slots))
	return nil
}

type slot struct {
	addr thor.Address
	key  thor.Bytes32
}

func equalValue(a, b *thor.Bytes32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// mismatch returns an error with the diff of the JSON forms of want and got.
func mismatch(what string, want, got any) error {
	conv := func(v any) any {
		if acc, ok := v.(*trielog.Account); ok {
			return trielogs.ConvertAccount(acc)
		}
		return v
	}
	wantJSON, _ := json.MarshalIndent(conv(want), "", "  ")
	gotJSON, _ := json.MarshalIndent(conv(got), "", "  ")

	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(wantJSON)),
		B:        difflib.SplitLines(string(gotJSON)),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	return errors.Errorf("%v mismatch:\n%v", what, diff)
}
