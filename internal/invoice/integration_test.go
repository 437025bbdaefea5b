package invoice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/zombor/invoice-parser/internal/invoice"
	"github.com/zombor/invoice-parser/internal/scanning"
)

// threePagePDF builds a PDF with three solid pages
func threePagePDF() []byte {
	readers := make([]io.Reader, 0, 3)
	for _, c := range []color.Color{color.White, color.Black, color.Gray{Y: 128}} {
		img := image.NewRGBA(image.Rect(0, 0, 100, 140))
		for y := 0; y < 140; y++ {
			for x := 0; x < 100; x++ {
				img.Set(x, y, c)
			}
		}
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())
		readers = append(readers, &buf)
	}

	var out bytes.Buffer
	Expect(api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), nil)).To(Succeed())
	return out.Bytes()
}

type chatRequest struct {
	Messages []struct {
		Role    string   `json:"role"`
		Content string   `json:"content"`
		Images  []string `json:"images"`
	} `json:"messages"`
}

var _ = Describe("Integration", func() {
	var (
		tempDir    string
		db         *invoice.BoltDB
		store      *invoice.LocalStorage
		backend    *scanning.Ollama
		service    *invoice.Service
		server     *invoice.Server
		ollama     *ghttp.Server
		apiServer  *ghttp.Server
		jsonReply  string
		mu         sync.Mutex
		imageCount []int
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		jsonReply = "Here is the data:\n```json\n{\"invoice_number\": \"INV-77\", \"items\": [{\"description\": \"Audit\", \"quantity\": 1, \"unit_price\": 900.00, \"total\": 900.00}]}\n```"
		imageCount = nil

		var err error
		db, err = invoice.NewBoltDB(filepath.Join(tempDir, "runs.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = invoice.NewLocalStorage(filepath.Join(tempDir, "diagnostics"))
		Expect(err).NotTo(HaveOccurred())

		ollama = ghttp.NewServer()
		ollama.RouteToHandler(http.MethodPost, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			user := req.Messages[len(req.Messages)-1]

			mu.Lock()
			imageCount = append(imageCount, len(user.Images))
			mu.Unlock()

			reply := ""
			switch user.Content {
			case scanning.InvoiceJSONPrompt.Text:
				reply = jsonReply
			case scanning.SummaryPrompt.Text:
				reply = "Invoice INV-77 for an audit."
			case scanning.LineItemsCSVPrompt.Text:
				reply = "Description,Quantity,Unit Price,Amount\nAudit,1,$900.00,$900.00\n,,TOTAL,$900.00"
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": reply},
				"done":    true,
			})
		})

		backend, err = scanning.NewOllama(ollama.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		service = invoice.NewService(scanning.NewNormalizer(scanning.WithDPI(36)), backend, db, store, invoice.WithConcurrentPasses())
		server = invoice.NewServer(service, invoice.BasicAuth{})

		apiServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			apiServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		apiServer.Close()
		ollama.Close()
		db.Close()
	})

	upload := func(name string, data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(apiServer.URL()+"/api/invoices", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("extracts a three-page PDF and serves its archive", func() {
		resp := upload("invoice.pdf", threePagePDF())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var result invoice.Result
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.Pages).To(Equal(3))
		Expect(result.Degraded).To(BeFalse())
		Expect(result.Record.Template().InvoiceNumber).To(Equal("INV-77"))
		Expect(result.Summary).To(Equal("Invoice INV-77 for an audit."))
		Expect(imageCount).To(Equal([]int{3, 3, 3}))

		run, err := db.GetRun(result.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(invoice.StatusDone))
		Expect(run.Kind).To(Equal(scanning.KindPDF))

		archive, err := http.Get(apiServer.URL() + "/api/invoices/" + result.RunID + "/archive")
		Expect(err).NotTo(HaveOccurred())
		defer archive.Body.Close()
		Expect(archive.StatusCode).To(Equal(http.StatusOK))
		Expect(archive.Header.Get("Content-Disposition")).To(ContainSubstring("invoice_invoice_outputs.zip"))
	})

	When("the model answers the JSON prompt with prose", func() {
		BeforeEach(func() {
			jsonReply = "Sorry, I cannot read this document."
		})

		It("stores the raw reply and still returns the other artifacts", func() {
			resp := upload("invoice.pdf", threePagePDF())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var result invoice.Result
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.Degraded).To(BeTrue())
			Expect(result.Record.IsEmpty()).To(BeTrue())
			Expect(result.CSV).To(ContainSubstring("TOTAL"))

			raw, err := store.Get(invoice.DiagnosticFilename(result.RunID))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal("Sorry, I cannot read this document."))
		})
	})

	When("the backend is down", func() {
		BeforeEach(func() {
			ollama.RouteToHandler(http.MethodPost, "/api/chat", ghttp.RespondWith(http.StatusServiceUnavailable, "loading model"))
		})

		It("returns Bad Gateway and records the failure", func() {
			resp := upload("invoice.pdf", threePagePDF())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			runs, err := service.ListRuns()
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].Status).To(Equal(invoice.StatusFailed))
			Expect(runs[0].FailedPass).NotTo(BeEmpty())
		})
	})

	It("rejects a corrupt PDF", func() {
		resp := upload("invoice.pdf", []byte("%PDF-1.4 not really"))
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(imageCount).To(BeEmpty())
	})

	It("passes a context through Extract", func() {
		doc, err := scanning.NewSourceDocument("invoice.pdf", threePagePDF(), "pdf")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = service.Extract(ctx, doc)
		Expect(err).To(MatchError(context.Canceled))
	})
})
