package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		credentials *mockCredentials
		scanner     *mockScanner
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func(maxBody int64) {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(NewService(credentials, scanner), maxBody, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AllowUnhandledRequests = true
		ghttpServer.UnhandledRequestStatusCode = http.StatusTeapot
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	postJSON := func(body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+"/parse_receipt", "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	readBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	BeforeEach(func() {
		credentials = newMockCredentials()
		scanner = newMockScanner(`[{"Quantity": 2, "Item": "Coffee", "price": 3.5}]`)
		setupServer(0)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleRoot", func() {
		It("should return the liveness message", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(readBody(resp)).To(MatchJSON(`{"message": "Hello from FastAPI!"}`))
		})

		It("should ignore a request body", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/", strings.NewReader("garbage"))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(`{"message": "Hello from FastAPI!"}`))
		})

		It("should not touch the pipeline", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(credentials.calls).To(BeZero())
			Expect(scanner.calls).To(BeZero())
		})
	})

	Describe("handleHealth", func() {
		It("should return ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(`{"status": "ok"}`))
		})
	})

	Describe("unknown routes", func() {
		It("should return Not Found", func() {
			resp, err := http.Get(ghttpServer.URL() + "/missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("should return Method Not Allowed for GET /parse_receipt", func() {
			resp, err := http.Get(ghttpServer.URL() + "/parse_receipt")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			resp.Body.Close()
		})
	})

	Describe("handleParseReceipt", func() {
		When("the model returns line items", func() {
			It("should return status OK with the parsed data", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(readBody(resp)).To(MatchJSON(`{"parsed_data": [{"Quantity": 2, "Item": "Coffee", "price": 3.5}]}`))
			})

			It("should keep numbers as numbers and field order intact", func() {
				body := readBody(postJSON(`{"base64_image": "aGVsbG8="}`))
				Expect(strings.TrimSpace(body)).To(Equal(`{"parsed_data":[{"Quantity":2,"Item":"Coffee","price":3.5}]}`))
			})

			It("should pass the image to the scanner", func() {
				readBody(postJSON(`{"base64_image": "aGVsbG8="}`))
				Expect(scanner.lastPrompt.ImageURL).To(Equal("data:image/jpeg;base64,aGVsbG8="))
			})
		})

		When("the model returns several line items", func() {
			BeforeEach(func() {
				scanner.reply = `[{"Quantity": 2, "Item": "Coffee", "price": 3.5}, {"Quantity": 1, "Item": "Bagel", "price": 2.25}]`
			})

			It("should return every item in order", func() {
				var parsed struct {
					ParsedData []map[string]any `json:"parsed_data"`
				}
				Expect(json.Unmarshal([]byte(readBody(postJSON(`{"base64_image": "x"}`))), &parsed)).To(Succeed())
				Expect(parsed.ParsedData).To(HaveLen(2))
				Expect(parsed.ParsedData[1]["Item"]).To(Equal("Bagel"))
				Expect(parsed.ParsedData[1]["price"]).To(Equal(2.25))
			})
		})

		When("the model returns text that is not JSON", func() {
			BeforeEach(func() {
				scanner.reply = "not json"
			})

			It("should return Bad Request with the fixed detail", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(MatchJSON(`{"detail": "Could not parse receipt data"}`))
			})
		})

		When("the model returns an empty list", func() {
			BeforeEach(func() {
				scanner.reply = "[]"
			})

			It("should respond exactly like unparseable output", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(MatchJSON(`{"detail": "Could not parse receipt data"}`))
			})
		})

		When("the model returns an empty object", func() {
			BeforeEach(func() {
				scanner.reply = "{}"
			})

			It("should respond exactly like unparseable output", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(MatchJSON(`{"detail": "Could not parse receipt data"}`))
			})
		})

		When("the model wraps its reply in an uppercase code block", func() {
			BeforeEach(func() {
				scanner.reply = "```JSON\n[{\"Quantity\": 1, \"Item\": \"Tea\", \"price\": 2}]\n```"
			})

			It("should return the line items", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(strings.TrimSpace(readBody(resp))).To(Equal(`{"parsed_data":[{"Quantity":1,"Item":"Tea","price":2}]}`))
			})
		})

		When("base64_image is missing", func() {
			It("should return Unprocessable Entity", func() {
				resp := postJSON(`{"image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(readBody(resp)).To(MatchJSON(`{"detail": [{"type": "missing", "loc": ["body", "base64_image"], "msg": "Field required"}]}`))
			})

			It("should not load credentials or call the model", func() {
				readBody(postJSON(`{}`))
				Expect(credentials.calls).To(BeZero())
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("base64_image is not a string", func() {
			It("should return Unprocessable Entity", func() {
				resp := postJSON(`{"base64_image": 42}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(readBody(resp)).To(ContainSubstring("string_type"))
				Expect(scanner.calls).To(BeZero())
			})

			It("should reject null", func() {
				resp := postJSON(`{"base64_image": null}`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				resp.Body.Close()
			})
		})

		When("the body is not JSON", func() {
			It("should return Unprocessable Entity", func() {
				resp := postJSON(`{"base64_image": `)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(readBody(resp)).To(ContainSubstring("json_invalid"))
			})
		})

		When("the body is empty", func() {
			It("should return Unprocessable Entity", func() {
				resp := postJSON("")
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(readBody(resp)).To(ContainSubstring("missing"))
			})
		})

		When("the body is a JSON array", func() {
			It("should return Unprocessable Entity", func() {
				resp := postJSON(`["aGVsbG8="]`)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(readBody(resp)).To(ContainSubstring("model_attributes_type"))
			})
		})

		When("the content type is not JSON", func() {
			It("should return Unprocessable Entity", func() {
				resp, err := http.Post(ghttpServer.URL()+"/parse_receipt", "text/plain", strings.NewReader(`{"base64_image": "aGVsbG8="}`))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				resp.Body.Close()
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("the body is too large", func() {
			BeforeEach(func() {
				setupServer(64)
			})

			It("should return Request Entity Too Large", func() {
				payload := `{"base64_image": "` + strings.Repeat("A", 128) + `"}`
				resp := postJSON(payload)
				Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
				resp.Body.Close()
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("the credentials cannot be loaded", func() {
			BeforeEach(func() {
				credentials.loadErr = errors.New("open config.yaml: no such file or directory")
			})

			It("should return a structured Internal Server Error", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(readBody(resp)).To(MatchJSON(`{"detail": "Receipt parser is not configured"}`))
			})

			It("should not leak the underlying error", func() {
				body := readBody(postJSON(`{"base64_image": "aGVsbG8="}`))
				Expect(body).NotTo(ContainSubstring("config.yaml"))
			})
		})

		When("the model call fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("rate limited")
			})

			It("should return a structured Bad Gateway", func() {
				resp := postJSON(`{"base64_image": "aGVsbG8="}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(readBody(resp)).To(MatchJSON(`{"detail": "Upstream model request failed"}`))
			})
		})
	})

	Describe("CORS", func() {
		It("should allow any origin on simple requests", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should echo the origin and allow credentials", func() {
			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/parse_receipt", bytes.NewBufferString(`{"base64_image": "aGVsbG8="}`))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Origin", "http://localhost:3000")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
			Expect(resp.Header.Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		})

		It("should answer preflight requests without reaching the handler", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/parse_receipt", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", "POST")
			req.Header.Set("Access-Control-Request-Headers", "content-type")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(Equal("OK"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
			Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(Equal("content-type"))
			Expect(scanner.calls).To(BeZero())
		})
	})

	Describe("request IDs", func() {
		It("should generate one when absent", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("X-Request-ID")).To(HaveLen(36))
		})

		It("should echo the caller's ID", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("X-Request-ID", "abc-123")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.Header.Get("X-Request-ID")).To(Equal("abc-123"))
		})
	})
})
