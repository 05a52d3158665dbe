package analysis

const propertyPrompt = `Act as a supportive and professional real estate analyst (IQ 360 Vision Node). Analyze this property image for condition markers.
Look for investment signals: roof damage, structural issues, or maintenance needs.
Reply with a single JSON object of this shape:
{
  "healthScore": 0.0-1.0,
  "distressMarkers": ["technical marker 1", "marker 2"],
  "visualDescription": "an architectural and structural summary",
  "acquisitionStrategy": "FIX & FLIP | BUY & HOLD | WHOLESALE | SELLER OPTIONS",
  "estimatedRehabComplexity": "Low | Medium | High"
}`

const compsPrompt = `Extract helpful market data for %s and its immediate 0.5-mile radius. Focus on data that helps the owner understand their asset's value. Summarize with a tone of clarity, opportunity, and high-level system awareness.
Cite every source you rely on as a markdown link [title](url).`

const contractPrompt = `Generate a professional 'Assignment of Contract' agreement for this asset: %s. Ensure the language is protective, fair, and adheres to the Ethical Kernel of the IQ 360 System.`
