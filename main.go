// Copyright 2026 grindsync contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("grindsync - offline-first multi-device sync for the grindset tracker")
	fmt.Println("====================================================================")
	fmt.Println()
	fmt.Println("grindsync keeps a device-local SQLite copy of your quests, activities,")
	fmt.Println("objectives, check-ins, and XP ledger, and replicates it to a shared")
	fmt.Println("backend so the same user can work from several devices while offline.")
	fmt.Println()
	fmt.Println("Packages:")
	fmt.Println()
	fmt.Println("  questsync/    Client-side sync engine: version ledger, change queue,")
	fmt.Println("                conflict resolution strategies, and the sync manager.")
	fmt.Println()
	fmt.Println("  questserver/  Shared backend: per-user record storage in Postgres")
	fmt.Println("                behind a JWT-authenticated HTTP API.")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println()
	fmt.Println("  examples/trackerserver/   A runnable backend server.")
	fmt.Println("  Run: cd examples/trackerserver && go run . serve")
	fmt.Println()
}
