package digidoc

func NewContainerForTest() *Container { return newContainer("test") }
