package api

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"casecommerce/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
)

// productForm is the multipart variant of service.CreateProductRequest.
type productForm struct {
	Name        string `form:"name" binding:"required,max=255"`
	Description string `form:"description" binding:"max=10000"`
	Price       string `form:"price" binding:"required"`
	Stock       string `form:"stock" binding:"required"`
	CategoryID  string `form:"category_id"`
}

func (f *productForm) toRequest() (*service.CreateProductRequest, map[string]string) {
	problems := make(map[string]string)
	req := &service.CreateProductRequest{Name: f.Name, Description: f.Description}

	price, err := decimal.NewFromString(strings.TrimSpace(f.Price))
	if err != nil {
		problems["price"] = "must be a decimal number"
	} else {
		req.Price = &price
	}

	stock, err := strconv.Atoi(strings.TrimSpace(f.Stock))
	if err != nil {
		problems["stock"] = "must be an integer"
	} else {
		req.Stock = &stock
	}

	if raw := strings.TrimSpace(f.CategoryID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			problems["category_id"] = "must be a positive integer"
		} else {
			req.CategoryID = &id
		}
	}

	return req, problems
}

// listCategories handles GET /categories
func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// getCategory handles GET /categories/:id
func (h *Handler) getCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	category, err := h.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// listProducts handles GET /products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// getProduct handles GET /products/:id
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// listProductsByCategory handles GET /products/category/:categoryId
func (h *Handler) listProductsByCategory(c *gin.Context) {
	id, ok := idParam(c, "categoryId")
	if !ok {
		return
	}

	products, err := h.catalog.ListProductsByCategory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// createProduct handles POST /products with either a JSON body or a
// multipart form carrying "image" files.
func (h *Handler) createProduct(c *gin.Context) {
	var (
		req *service.CreateProductRequest
		ok  bool
	)
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		req, ok = h.bindProductForm(c)
	} else {
		req = &service.CreateProductRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			respondBindError(c, err)
			return
		}
		ok = true
	}
	if !ok {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		if h.images != nil && len(req.ImageURLs) > 0 {
			h.images.Remove(req.ImageURLs)
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

// bindProductForm parses the multipart form and stores its images. It
// writes the response itself when it returns false.
func (h *Handler) bindProductForm(c *gin.Context) (*service.CreateProductRequest, bool) {
	var form productForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		respondBindError(c, err)
		return nil, false
	}

	req, problems := form.toRequest()
	if len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": problems})
		return nil, false
	}

	files := uploadedImages(c)
	if len(files) == 0 {
		return req, true
	}
	if h.images == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image uploads are not enabled"})
		return nil, false
	}

	urls, err := h.images.SaveAll(files)
	if err != nil {
		if !respondUploadError(c, err) {
			h.respondError(c, err)
		}
		return nil, false
	}
	req.ImageURLs = urls
	return req, true
}

func uploadedImages(c *gin.Context) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	files := append([]*multipart.FileHeader{}, form.File["image"]...)
	return append(files, form.File["images"]...)
}

// updateProduct handles PUT /products/:id
func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// deleteProduct handles DELETE /products/:id
func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}
