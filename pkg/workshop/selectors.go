package workshop

// Steam Workshop markup the adapters rely on.
const (
	selNoItems  = "#no_items"
	selItemLink = "a.item_link"

	selCollectionChildren = ".collectionChildren"
	selCollectionItem     = ".collectionItem a[href*='filedetails/?id=']"

	selAddToCollection = ".general_btn[onclick*='AddToCollection']"
	selAddDialog       = "#AddToCollectionDialog"
	selDialogConfirm   = ".btn_green_steamui.btn_medium span"

	selSubscribeAll  = "a.general_btn.subscribe[onclick*='SubscribeCollection']"
	selModal         = ".newmodal"
	selAddOnly       = "xpath=//div[contains(@class, 'btn_green_steamui') and contains(@class, 'btn_medium')]//span[text()='Add Only']"
	selAddOnlyLegacy = "div.btn_green_steamui.btn_medium"
)

// collectionCheckbox selects the dialog checkbox for a collection. Steam
// uses the bare numeric id, which is not a valid #id selector.
func collectionCheckbox(id string) string {
	return "[id='" + id + "']"
}
