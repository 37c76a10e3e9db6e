package main

import (
	"fmt"
	"os"
	"strconv"

	"shieldpool/internal/note"
)

// Usage:
//
//	calculate-commitment new <amount>   draw a fresh note
//	calculate-commitment show <note>    recompute the hashes of a saved note
func main() {
	if len(os.Args) != 3 {
		usage()
	}

	var (
		n   *note.Note
		err error
	)
	switch os.Args[1] {
	case "new":
		amount, perr := strconv.ParseUint(os.Args[2], 10, 64)
		if perr != nil {
			fmt.Printf("Invalid amount: %v\n", perr)
			os.Exit(2)
		}
		n, err = note.New(amount)
	case "show":
		n, err = note.Parse(os.Args[2])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Note ===")
	fmt.Printf("Note:           %s\n", n)
	fmt.Printf("Amount:         %d\n", n.Amount)
	fmt.Printf("Precommitment:  %s\n", n.Precommitment().Hex())
	fmt.Printf("Commitment:     %s\n", n.Commitment().Hex())
	fmt.Printf("Nullifier hash: %s\n", n.NullifierHash().Hex())
}

func usage() {
	fmt.Println("Usage: calculate-commitment new <amount> | show <note>")
	os.Exit(2)
}
