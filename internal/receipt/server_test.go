package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// multipartFile builds a form with one file under field; an empty filename posts no file
func multipartFile(field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	if filename != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, _ := writer.CreatePart(header)
		part.Write(data)
	}
	writer.Close()
	return &b, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		backend  *mockBackend
		previews *mockPreviewStore
		notices  *FlashNotifier
		view     *View
		server   *Server
	)

	BeforeEach(func() {
		backend = newMockBackend(scenarioRecords()...)
		previews = newMockPreviewStore()
		notices = NewFlashNotifier()
		view = NewView(backend, previews, notices)
		format, err := NewFormatter("ko-KR", "원", "건")
		Expect(err).NotTo(HaveOccurred())
		server = NewServerWithMux(view, notices, previews, format, http.NewServeMux())
	})

	do := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	get := func(path string) *httptest.ResponseRecorder {
		return do(httptest.NewRequest(http.MethodGet, path, nil))
	}

	post := func(path string) *httptest.ResponseRecorder {
		return do(httptest.NewRequest(http.MethodPost, path, nil))
	}

	postFile := func(filename, contentType string, data []byte) *httptest.ResponseRecorder {
		body, formType := multipartFile("file", filename, contentType, data)
		req := httptest.NewRequest(http.MethodPost, "/draft", body)
		req.Header.Set("Content-Type", formType)
		return do(req)
	}

	state := func() stateResponse {
		rec := get("/api/state")
		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp stateResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	Describe("handleIndex", func() {
		When("the backend returns receipts", func() {
			It("should return status OK with HTML", func() {
				rec := get("/")
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Header().Get("Content-Type")).To(Equal("text/html; charset=utf-8"))
				Expect(rec.Body.String()).To(ContainSubstring("Receipt AI Scanner"))
			})

			It("should render the total and count", func() {
				body := get("/").Body.String()
				Expect(body).To(ContainSubstring("17,000원"))
				Expect(body).To(ContainSubstring("2건"))
			})

			It("should list receipts newest first with the fallback date", func() {
				body := get("/").Body.String()
				Expect(body).To(MatchRegexp(`(?s)Mart B.*` + MissingDateLabel + `.*12,000원.*Cafe A.*2024-01-01.*5,000원`))
			})

			It("should fetch the list only on first presentation", func() {
				get("/")
				get("/")
				list, _ := backend.calls()
				Expect(list).To(Equal(1))
			})
		})

		When("the backend has no receipts", func() {
			BeforeEach(func() {
				backend.records = nil
			})

			It("should say there are no receipts", func() {
				body := get("/").Body.String()
				Expect(body).To(ContainSubstring(`id="no-receipts"`))
				Expect(body).NotTo(ContainSubstring(`id="load-failed"`))
			})
		})

		When("the backend is down", func() {
			BeforeEach(func() {
				backend.listErr = errBackendDown
			})

			It("should still render and show the failure apart from an empty list", func() {
				rec := get("/")
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Body.String()).To(ContainSubstring(`id="load-failed"`))
				Expect(rec.Body.String()).NotTo(ContainSubstring(`id="no-receipts"`))
			})
		})

		When("a draft is selected", func() {
			BeforeEach(func() {
				Expect(view.SelectFile(context.Background(), jpegFile("receipt.jpg"))).To(Succeed())
			})

			It("should show the preview and an enabled submit button", func() {
				body := get("/").Body.String()
				Expect(body).To(ContainSubstring(`src="/previews/` + previews.created[0] + `"`))
				Expect(body).To(ContainSubstring("Start analysis"))
				Expect(body).NotTo(ContainSubstring("disabled"))
			})
		})

		When("no draft is selected", func() {
			It("should not show a submit button", func() {
				Expect(get("/").Body.String()).NotTo(ContainSubstring("Start analysis"))
			})
		})

		When("a notice is pending", func() {
			BeforeEach(func() {
				notices.Notify(Notice{Kind: NoticeFailure, Message: "Analysis failed: boom"})
			})

			It("should show it", func() {
				body := get("/").Body.String()
				Expect(body).To(ContainSubstring(`id="notice"`))
				Expect(body).To(ContainSubstring("Analysis failed: boom"))
			})
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				Expect(post("/").Code).To(Equal(http.StatusMethodNotAllowed))
			})
		})

		When("the path is unknown", func() {
			It("should return status Not Found", func() {
				Expect(get("/nope").Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleSelectFile", func() {
		When("a file is posted", func() {
			var rec *httptest.ResponseRecorder

			BeforeEach(func() {
				rec = postFile("receipt.png", "image/png", []byte("png data"))
			})

			It("should redirect to the dashboard", func() {
				Expect(rec.Code).To(Equal(http.StatusSeeOther))
				Expect(rec.Header().Get("Location")).To(Equal("/"))
			})

			It("should store the draft", func() {
				draft := state().Draft
				Expect(draft).NotTo(BeNil())
				Expect(draft.Filename).To(Equal("receipt.png"))
				Expect(draft.ContentType).To(Equal("image/png"))
				Expect(draft.Size).To(Equal(len("png data")))
			})
		})

		When("the file has no declared content type", func() {
			It("should derive it from the extension", func() {
				postFile("scan.JPG", "", []byte("jpeg data"))
				Expect(state().Draft.ContentType).To(Equal("image/jpeg"))
			})
		})

		When("the picker was cancelled", func() {
			It("should redirect without creating a draft", func() {
				rec := postFile("", "", nil)
				Expect(rec.Code).To(Equal(http.StatusSeeOther))
				Expect(state().Draft).To(BeNil())
				Expect(previews.created).To(BeEmpty())
			})
		})

		When("the form is invalid", func() {
			It("should return status Bad Request", func() {
				req := httptest.NewRequest(http.MethodPost, "/draft", bytes.NewBufferString("invalid"))
				req.Header.Set("Content-Type", "multipart/form-data")
				Expect(do(req).Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("the preview cannot be stored", func() {
			BeforeEach(func() {
				previews.createErr = errBackendDown
			})

			It("should return status Internal Server Error", func() {
				Expect(postFile("receipt.png", "image/png", []byte("x")).Code).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleDiscardDraft", func() {
		It("should drop the draft and release its preview", func() {
			postFile("receipt.png", "image/png", []byte("x"))
			rec := post("/draft/discard")
			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(state().Draft).To(BeNil())
			Expect(previews.live()).To(BeZero())
		})
	})

	Describe("handleUpload", func() {
		When("no draft is selected", func() {
			It("should redirect without calling the backend", func() {
				rec := post("/upload")
				Expect(rec.Code).To(Equal(http.StatusSeeOther))
				_, upload := backend.calls()
				Expect(upload).To(BeZero())
				Expect(state().Notice).To(BeNil())
			})
		})

		When("the upload succeeds", func() {
			BeforeEach(func() {
				postFile("receipt.png", "image/png", []byte("x"))
				Expect(post("/upload").Code).To(Equal(http.StatusSeeOther))
			})

			It("should leave a success notice and clear the draft", func() {
				s := state()
				Expect(s.Notice).To(Equal(&Notice{Kind: NoticeSuccess, Message: uploadSucceededMessage}))
				Expect(s.Draft).To(BeNil())
				Expect(s.Uploading).To(BeFalse())
			})

			It("should refresh the list once", func() {
				list, _ := backend.calls()
				Expect(list).To(Equal(1))
				Expect(state().LoadState).To(Equal(LoadLoaded))
			})
		})

		When("the upload fails", func() {
			BeforeEach(func() {
				backend.uploadErr = errBackendDown
				postFile("receipt.png", "image/png", []byte("x"))
				Expect(post("/upload").Code).To(Equal(http.StatusSeeOther))
			})

			It("should leave a failure notice with the error and keep the draft", func() {
				s := state()
				Expect(s.Notice.Kind).To(Equal(NoticeFailure))
				Expect(s.Notice.Message).To(ContainSubstring("connection refused"))
				Expect(s.Draft).NotTo(BeNil())
				Expect(s.Uploading).To(BeFalse())
			})
		})
	})

	Describe("handleRefresh", func() {
		It("should fetch the list again", func() {
			get("/")
			Expect(post("/refresh").Code).To(Equal(http.StatusSeeOther))
			list, _ := backend.calls()
			Expect(list).To(Equal(2))
		})
	})

	Describe("handleAcknowledge", func() {
		It("should dismiss the pending notice", func() {
			notices.Notify(Notice{Kind: NoticeSuccess, Message: "done"})
			Expect(post("/notice/ack").Code).To(Equal(http.StatusSeeOther))
			Expect(notices.Pending()).To(BeNil())
		})
	})

	Describe("handlePreview", func() {
		When("the preview exists", func() {
			It("should serve it with its content type", func() {
				postFile("receipt.png", "image/png", []byte("png data"))
				rec := get("/previews/" + previews.created[0])
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Header().Get("Content-Type")).To(Equal("image/png"))
				Expect(rec.Body.String()).To(Equal("png data"))
			})
		})

		When("the preview was released", func() {
			It("should return status Not Found", func() {
				postFile("receipt.png", "image/png", []byte("png data"))
				id := previews.created[0]
				post("/draft/discard")
				Expect(get("/previews/" + id).Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleState", func() {
		It("should return the state as JSON", func() {
			get("/")
			rec := get("/api/state")
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var raw map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &raw)).To(Succeed())
			Expect(raw["loadState"]).To(Equal("loaded"))
			Expect(raw["totalAmount"]).To(BeNumerically("==", 17000))
			Expect(raw["receipts"]).To(HaveLen(2))
		})
	})

	Describe("static files", func() {
		It("should serve the stylesheet", func() {
			rec := get("/static/app.css")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("text/css"))
		})

		It("should serve the script", func() {
			rec := get("/static/app.js")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/javascript; charset=utf-8"))
		})
	})

	Describe("Start and Shutdown", func() {
		It("should return from Start once the server is shut down", func() {
			done := make(chan error, 1)
			srv := server
			go func() {
				defer GinkgoRecover()
				done <- srv.Start("127.0.0.1:0")
			}()

			Consistently(done, "100ms").ShouldNot(Receive())
			Expect(server.Shutdown(context.Background())).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})

		It("should not serve when Shutdown ran before Start", func() {
			Expect(server.Shutdown(context.Background())).To(Succeed())

			done := make(chan error, 1)
			srv := server
			go func() {
				defer GinkgoRecover()
				done <- srv.Start("127.0.0.1:0")
			}()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("returns an error when the address cannot be used", func() {
			Expect(server.Start("not-an-address")).To(MatchError(ContainSubstring("listening on")))
		})
	})
})
