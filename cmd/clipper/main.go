// Command clipper is a producer: it drops a capture into the shared spool
// without ever opening the primary store. The host daemon picks it up on its
// next activation or spool event.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/clipdeck/clipdeck/internal/client/inbox"
	"github.com/clipdeck/clipdeck/internal/models"
)

func main() {
	spoolDir := flag.String("s", "spool", "spool directory shared with the host daemon")
	sourceID := flag.String("source", "clipper", "producer identifier stamped on the payload")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-s dir] [-source id] item [item ...]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Each item that parses as an http(s) URL is captured as a link, anything else as a note.")
		flag.PrintDefaults()
	}
	flag.Parse()

	items := flag.Args()
	if len(items) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	payload := models.InboxPayload{
		SourceID:  *sourceID,
		CreatedAt: time.Now().UTC(),
	}
	for _, item := range items {
		if isHTTPURL(item) {
			payload.URLs = append(payload.URLs, item)
		} else {
			payload.Texts = append(payload.Texts, item)
		}
	}

	if err := inbox.NewAppender(*spoolDir).Append(payload); err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("queued %d item(s) in %s\n", len(items), *spoolDir)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
