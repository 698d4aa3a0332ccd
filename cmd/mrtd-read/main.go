// mrtd-read reads a travel document chip through a PC/SC reader.
//
// The document is opened with Basic Access Control: the MRZ fields
// printed on the data page are the access key. The tool prints the
// machine readable zone from the chip and can save the holder's
// portrait.
//
// Usage:
//
//	mrtd-read -doc L898902C -dob 690806 -doe 940623 [options]
//
// Options:
//
//	-doc      Document number as printed in the MRZ (required)
//	-dob      Date of birth, YYMMDD (required)
//	-doe      Date of expiry, YYMMDD (required)
//	-reader   PC/SC reader name (default: first reader found)
//	-face     Read the face image from data group 2
//	-out      Path to save the face image (implies -face)
//	-timeout  Per-exchange timeout (default: 5s)
//	-verbose  Log the protocol progress
//
// Example:
//
//	mrtd-read -doc L898902C -dob 690806 -doe 940623 -face -out face.jpg
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pion/logging"

	"github.com/epassd/mrtd/pkg/mrz"
	"github.com/epassd/mrtd/pkg/reader"
	"github.com/epassd/mrtd/pkg/transport"
)

func main() {
	var (
		doc        = flag.String("doc", "", "document number as printed in the MRZ")
		dob        = flag.String("dob", "", "date of birth, YYMMDD")
		doe        = flag.String("doe", "", "date of expiry, YYMMDD")
		readerName = flag.String("reader", "", "PC/SC reader name (default: first reader found)")
		face       = flag.Bool("face", false, "read the face image from data group 2")
		out        = flag.String("out", "", "path to save the face image (implies -face)")
		timeout    = flag.Duration("timeout", transport.DefaultExchangeTimeout, "per-exchange timeout")
		verbose    = flag.Bool("verbose", false, "log the protocol progress")
	)
	flag.Parse()

	if *doc == "" || *dob == "" || *doe == "" {
		fmt.Fprintln(os.Stderr, "mrtd-read: -doc, -dob and -doe are required")
		flag.Usage()
		os.Exit(2)
	}

	seed, err := mrz.NewKeySeed(strings.ToUpper(*doc), *dob, *doe)
	if err != nil {
		log.Fatalf("Bad MRZ fields: %v", err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	if *verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	}

	card := transport.NewPCSC(transport.PCSCConfig{
		Reader:          *readerName,
		ExchangeTimeout: *timeout,
		LoggerFactory:   loggerFactory,
	})

	r, err := reader.New(reader.Config{
		Transport:     card,
		ReadDG2:       *face || *out != "",
		LoggerFactory: loggerFactory,
		OnProgress: func(p reader.Progress) {
			if *verbose {
				return // the debug log already covers it
			}
			fmt.Printf("\r%-20s %3d%%", p.State, p.Percent)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create reader: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Present the document to the reader...")
	start := time.Now()
	result, err := r.Read(ctx, seed)
	fmt.Println()
	if err != nil {
		log.Fatalf("Read failed (%s): %v", reader.Categorize(err), err)
	}
	fmt.Printf("Read complete in %s\n\n", time.Since(start).Round(time.Millisecond))

	printDocument(result.Document)
	fmt.Printf("\nLDS %s, data groups:", result.COM.LDSVersion)
	for _, tag := range result.COM.DataGroupTags {
		fmt.Printf(" %s", tag)
	}
	fmt.Println()

	if result.Biometrics != nil {
		img := result.Biometrics.Images[0]
		fmt.Printf("Face image: %s, %d bytes\n", img.Format, len(img.Data))
		if *out != "" {
			if err := os.WriteFile(*out, img.Data, 0o644); err != nil {
				log.Fatalf("Failed to save face image: %v", err)
			}
			fmt.Printf("Saved to %s\n", *out)
		}
	}
	if result.SOD != nil {
		fmt.Printf("Security object: %d bytes (not verified)\n", len(result.SOD.Raw))
	}
}

func printDocument(doc mrz.Document) {
	fmt.Printf("Document:    %s %s (%s)\n", doc.Type, doc.DocumentNumber, doc.IssuingState)
	fmt.Printf("Holder:      %s, %s\n", doc.Primary, doc.Secondary)
	fmt.Printf("Nationality: %s\n", doc.Nationality)
	fmt.Printf("Born:        %s  Sex: %s\n", doc.BirthDate, doc.Sex)
	fmt.Printf("Expires:     %s\n", doc.ExpiryDate)
	if doc.PersonalNumber != "" {
		fmt.Printf("Personal no: %s\n", doc.PersonalNumber)
	}
}
