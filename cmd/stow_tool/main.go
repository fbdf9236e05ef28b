// Command stow_tool uploads local DICOM files to a DICOMweb STOW-RS
// endpoint. Useful for seeding a gateway during development.
//
// Usage:
//
//	stow_tool -url http://localhost:8080/dicomweb/ -study <StudyInstanceUID> file1.dcm file2.dcm ...
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/suyashkumar/dicom"

	"imaging-gateway/dicomweb"
)

func main() {
	url := flag.String("url", "", "base URL of the DICOMweb service (required)")
	study := flag.String("study", "", "StudyInstanceUID to store to (optional)")
	auth := flag.String("auth", "", "Authorization header value (optional)")
	flag.Parse()

	if *url == "" || flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s -url <base-url> [-study <uid>] [-auth <header>] file.dcm...\n", os.Args[0])
		os.Exit(2)
	}

	var datasets []*dicom.Dataset
	for _, path := range flag.Args() {
		ds, err := dicom.ParseFile(path, nil)
		if err != nil {
			log.Fatalf("parsing %s: %v", path, err)
		}
		datasets = append(datasets, &ds)
	}

	client, err := dicomweb.NewClient(nil, *url)
	if err != nil {
		log.Fatalf("configuring client: %v", err)
	}
	if *auth != "" {
		client.ConfigureAuthentication(*auth)
	}

	resp, err := client.Stow.Store(context.Background(), *study, datasets)
	if err != nil {
		log.Fatalf("store failed: %v", err)
	}
	fmt.Printf("status: %d\n", resp.StatusCode)
	if resp.Payload != "" {
		fmt.Println(resp.Payload)
	}
}
