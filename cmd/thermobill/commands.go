package main

import (
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/chaz8081/thermobill/internal/ble"
	"github.com/chaz8081/thermobill/internal/config"
	"github.com/chaz8081/thermobill/internal/escpos"
	"github.com/chaz8081/thermobill/internal/journal"
	"github.com/chaz8081/thermobill/internal/printjob"
	"github.com/chaz8081/thermobill/internal/receipt"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "List nearby BLE peripherals, strongest signal first",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Usage: "scan duration (default: printer.scan_duration)"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			t, err := newTransport(e.cfg)
			if err != nil {
				return err
			}
			d := c.Duration("duration")
			if d <= 0 {
				d = e.cfg.Printer.ScanDuration
			}
			e.log.Info("[BLE] scanning", zap.Duration("duration", d))
			devices, err := ble.ScanForDevices(t, d)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No devices found.")
				return nil
			}
			for _, dev := range devices {
				name := dev.Name
				if name == "" {
					name = "(unnamed)"
				}
				fmt.Printf("%-20s %4d dBm  %s\n", dev.Address, dev.RSSI, name)
			}
			return nil
		},
	}
}

func customersFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "customers",
		Usage:    "JSON file with customer records from the billing API",
		Required: true,
	}
}

func textFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "text",
		Usage: "print with ESC/POS text commands instead of a rendered image",
	}
}

func loadCustomers(path string) ([]receipt.Customer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening customers: %w", err)
	}
	defer f.Close()
	return receipt.LoadRecords(f)
}

func printReceiptCommand() *cli.Command {
	return &cli.Command{
		Name:  "print-receipt",
		Usage: "Print a payment receipt for one customer",
		Flags: []cli.Flag{
			customersFlag(),
			&cli.StringFlag{Name: "id", Usage: "customer id or phone number", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "collected amount in dram", Required: true},
			textFlag(),
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			customers, err := loadCustomers(c.String("customers"))
			if err != nil {
				return err
			}
			cust, ok := receipt.Find(customers, c.String("id"))
			if !ok {
				return cli.Exit(fmt.Sprintf("no customer with id or phone %q", c.String("id")), 1)
			}
			paid, err := receipt.ParseAmount(c.String("amount"))
			if err != nil {
				return err
			}
			if paid == 0 {
				return cli.Exit("amount must be greater than zero", 1)
			}
			loc, err := receipt.ParseLocale(e.cfg.Receipt.Locale)
			if err != nil {
				return err
			}
			number, err := receipt.NewNumber()
			if err != nil {
				return err
			}

			now := time.Now()
			doc := receipt.FormatReceipt(receipt.Fields{
				Company:   e.cfg.Receipt.Company,
				Collector: e.cfg.Receipt.Collector,
				Customer:  cust,
				Paid:      paid,
				Month:     now.Month(),
				Date:      now,
				Number:    number,
			}, loc)

			p, err := e.openPrinter(c.Context, !c.Bool("text"))
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.PrintDocument(c.Context, doc, printjob.Job{
				Kind:       printjob.KindReceipt,
				CustomerID: cust.Key(),
				Amount:     paid,
				Number:     number,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Printed receipt %s for %s (%s)\n", number, cust.Name, loc.FormatAmount(paid))
			e.log.Debug("[PRINT] receipt job", zap.String("job", res.ID))
			return nil
		},
	}
}

func printListCommand() *cli.Command {
	return &cli.Command{
		Name:  "print-list",
		Usage: "Print a collection list for several customers with a total",
		Flags: []cli.Flag{
			customersFlag(),
			&cli.StringSliceFlag{Name: "id", Usage: "customer ids to include (default: all)"},
			textFlag(),
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			customers, err := loadCustomers(c.String("customers"))
			if err != nil {
				return err
			}
			if ids := c.StringSlice("id"); len(ids) > 0 {
				var selected []receipt.Customer
				for _, id := range ids {
					cust, ok := receipt.Find(customers, id)
					if !ok {
						return cli.Exit(fmt.Sprintf("no customer with id or phone %q", id), 1)
					}
					selected = append(selected, cust)
				}
				customers = selected
			}
			if len(customers) == 0 {
				return cli.Exit("no customers to print", 1)
			}
			loc, err := receipt.ParseLocale(e.cfg.Receipt.Locale)
			if err != nil {
				return err
			}

			entries := make([]receipt.ListEntry, len(customers))
			for i, cust := range customers {
				entries[i] = receipt.ListEntry{Customer: cust, Amount: cust.Expected}
			}
			doc := receipt.FormatList(e.cfg.Receipt.Company, entries, time.Now(), loc)

			p, err := e.openPrinter(c.Context, !c.Bool("text"))
			if err != nil {
				return err
			}
			defer p.Close()

			total := receipt.Total(entries)
			if _, err := p.PrintDocument(c.Context, doc, printjob.Job{Kind: printjob.KindList, Amount: total}); err != nil {
				return err
			}
			fmt.Printf("Printed list of %d customers, total %s\n", len(entries), loc.FormatAmount(total))
			return nil
		},
	}
}

func printTextCommand() *cli.Command {
	return &cli.Command{
		Name:      "print-text",
		Usage:     "Print plain text on the direct text path",
		ArgsUsage: "TEXT",
		Action: func(c *cli.Context) error {
			s := strings.Join(c.Args().Slice(), " ")
			if s == "" {
				return cli.Exit("print-text needs the text to print", 1)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			// The renderer only comes into play for text the code page cannot hold.
			p, err := e.openPrinter(c.Context, true)
			if err != nil {
				return err
			}
			defer p.Close()
			_, err = p.PrintText(c.Context, s, printjob.Job{Kind: printjob.KindText})
			return err
		},
	}
}

func printImageCommand() *cli.Command {
	return &cli.Command{
		Name:      "print-image",
		Usage:     "Decode an image, scale it to the print width and print it",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("print-image needs one image file", 1)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			img, err := decodeFile(c.Args().First())
			if err != nil {
				return err
			}
			p, err := e.openPrinter(c.Context, false)
			if err != nil {
				return err
			}
			defer p.Close()
			_, err = p.PrintImage(c.Context, img, printjob.Job{Kind: printjob.KindImage})
			return err
		},
	}
}

func testPrintCommand() *cli.Command {
	return &cli.Command{
		Name:  "test-print",
		Usage: "Print a band-mode calibration pattern",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			p, err := e.openPrinter(c.Context, false)
			if err != nil {
				return err
			}
			defer p.Close()

			stream := append(escpos.TestPattern(e.cfg.Raster.Width), escpos.Feed(e.cfg.Raster.FeedLines)...)
			_, err = p.PrintStream(c.Context, stream, printjob.Job{Kind: printjob.KindTest})
			return err
		},
	}
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Write the ESC/POS stream for an image or text to a file without a printer",
		ArgsUsage: "IMAGE|TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "output file", Required: true},
			&cli.BoolFlag{Name: "text", Usage: "treat the argument as text instead of an image path"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("encode needs an image file or, with --text, the text", 1)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			opts, err := e.pipelineOptions(c.Bool("text"))
			if err != nil {
				return err
			}

			out, err := os.Create(c.String("out"))
			if err != nil {
				return fmt.Errorf("creating %s: %w", c.String("out"), err)
			}
			defer out.Close()
			o, err := printjob.New(fileWriter{out}, opts)
			if err != nil {
				return err
			}

			var res printjob.Result
			if c.Bool("text") {
				res, err = o.PrintText(c.Context, strings.Join(c.Args().Slice(), " "), printjob.Job{Kind: printjob.KindText})
			} else {
				img, derr := decodeFile(c.Args().First())
				if derr != nil {
					return derr
				}
				res, err = o.PrintImage(c.Context, img, printjob.Job{Kind: printjob.KindImage})
			}
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d bytes (%d chunks at %d bytes) to %s\n", res.Bytes, res.Chunks, opts.Transmit.ChunkSize, c.String("out"))
			return nil
		},
	}
}

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Show recent print jobs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "number of jobs to show (0 = all)", Value: 20},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			if !e.cfg.Journal.Enabled {
				return cli.Exit("the journal is disabled (journal.enabled: false)", 1)
			}
			store, err := journal.Open(e.cfg.Journal.Path, e.log)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No print jobs recorded.")
				return nil
			}
			for _, j := range entries {
				fmt.Println(formatEntry(j))
			}
			return nil
		},
	}
}

func formatEntry(j journal.Entry) string {
	line := fmt.Sprintf("%s  %-9s %-8s %6d B %4d ch  %6s",
		j.StartedAt.Format("2006-01-02 15:04:05"), j.Status, j.Kind, j.Bytes, j.Chunks,
		j.Duration().Round(time.Millisecond))
	if j.CustomerID != "" {
		line += "  customer " + j.CustomerID
	}
	if j.Amount > 0 {
		line += fmt.Sprintf("  %d", j.Amount)
	}
	if j.Number != "" {
		line += "  #" + j.Number
	}
	if j.Error != "" {
		line += "  error: " + j.Error
	}
	return line
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write a starter config file",
		Action: func(c *cli.Context) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	return escpos.Decode(f)
}

// fileWriter receives encoded chunks in place of a printer.
type fileWriter struct {
	f *os.File
}

func (w fileWriter) Write(chunk []byte) error {
	_, err := w.f.Write(chunk)
	return err
}
