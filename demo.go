package main

import (
	"context"
	"fmt"
	"io"

	"github.com/DiademGraceArroz/blockchain-demo/blockchain"
	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

/**
 * runDemo walks through the life of a chain on the console: mining a few
 * payments, tampering with one of them, showing what each validation mode
 * reports and repairing the chain by re-mining.
 *
 * Parameters:
 *   - ctx: Cancels any mining search in progress
 *   - chain: An initialized chain
 *   - out: Destination of the report
 */
func runDemo(ctx context.Context, chain *blockchain.Blockchain, out io.Writer) error {
	fmt.Fprintf(out, "== Chain %s, difficulty %d ==\n", chain.ID(), chain.GetDifficulty())

	payments := append([]string{"Alice pays Bob 10 BTC"}, blockchain.AutoMineTransactions...)
	for _, data := range payments {
		block, miningTime, err := chain.AddBlockContext(ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Mined block %d in %dms: %s\n", block.Index, miningTime, utils.ShortHash(block.Hash))
	}
	printBlocks(out, chain)
	printValidation(out, chain)

	fmt.Fprintln(out, "\n== Tampering with block 2 ==")
	if !chain.TamperBlock(2, "Bob pays Mallory 500 BTC") {
		return fmt.Errorf("block 2 could not be tampered")
	}
	printValidation(out, chain)

	fmt.Fprintln(out, "\n== Re-mining from block 2 ==")
	total, err := chain.RemineFrom(ctx, 2)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Re-mined %d blocks in %dms\n", chain.GetLength()-2, total)
	printValidation(out, chain)

	stats := chain.Stats()
	fmt.Fprintf(out, "\nBlocks: %d, mined: %d, average mining time: %dms, last: %dms\n",
		stats.Blocks, stats.MinedBlocks, stats.AverageMiningTime, stats.LastMiningTime)
	return nil
}

func printBlocks(out io.Writer, chain *blockchain.Blockchain) {
	for _, b := range chain.GetBlocks() {
		fmt.Fprintf(out, "  #%d nonce=%-6d prev=%-19s hash=%-19s %q\n",
			b.Index, b.Nonce, utils.ShortHash(b.PreviousHash), utils.ShortHash(b.Hash), b.Data)
	}
}

func printValidation(out io.Writer, chain *blockchain.Blockchain) {
	link := chain.IsChainValid()
	full := chain.ValidateFull()
	fmt.Fprintf(out, "Link check: %s\n", describe(link))
	fmt.Fprintf(out, "Full check: %s\n", describe(full))
}

func describe(r blockchain.ValidationResult) string {
	if r.Valid {
		return "valid"
	}
	return fmt.Sprintf("invalid at block %d (%s)", r.InvalidIndex, r.Reason)
}
