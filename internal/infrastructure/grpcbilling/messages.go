package grpcbilling

type supportedRequest struct {
	APIVersion  int    `json:"api_version"`
	PackageName string `json:"package_name"`
	Type        string `json:"type"`
}

type skuDetailsRequest struct {
	APIVersion  int      `json:"api_version"`
	PackageName string   `json:"package_name"`
	Type        string   `json:"type"`
	SKUs        []string `json:"item_id_list"`
}

type buyIntentRequest struct {
	APIVersion       int      `json:"api_version"`
	PackageName      string   `json:"package_name"`
	SKU              string   `json:"sku"`
	OldSKUs          []string `json:"old_skus,omitempty"`
	Type             string   `json:"type"`
	DeveloperPayload string   `json:"developer_payload,omitempty"`
}

type purchasesRequest struct {
	APIVersion        int    `json:"api_version"`
	PackageName       string `json:"package_name"`
	Type              string `json:"type"`
	ContinuationToken string `json:"continuation_token,omitempty"`
}

type consumeRequest struct {
	APIVersion    int    `json:"api_version"`
	PackageName   string `json:"package_name"`
	PurchaseToken string `json:"purchase_token"`
}

type codeResponse struct {
	ResponseCode int `json:"response_code"`
}
