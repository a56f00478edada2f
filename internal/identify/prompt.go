package identify

// identificationPrompt asks the vision model for a single JSON object that
// parseAnswer understands. Field names must stay in sync with modelAnswer.
const identificationPrompt = `
Identify the insect or bug in the image(s). Provide as much detail as possible including:
- The common name
- Scientific name (if known)
- Physical characteristics
- Habitat
- Diet
- Potential harm level (harmful, harmless, beneficial)
- Typical size
- Lifespan
- Threat level assessment (harmful to humans, beneficial, or neutral)
- Pest control recommendations (if it's a pest)
- Environmental impact (how it affects the ecosystem)
- Conservation status (endangered, threatened, common)
- Similar species (what bugs it's commonly confused with)

Also provide a confidence score (0-100) of how certain you are about this identification.

If you're not completely certain, provide up to 3 alternative identifications with their scientific names and confidence scores.

Return your response as a structured JSON object with these fields:
{
  "name": "Common Bug Name",
  "scientificName": "Scientific Name (if known)",
  "confidence": 85,
  "type": "Type of bug (e.g., Beetle, Butterfly, etc.)",
  "habitat": "Where it's commonly found",
  "harmLevel": "Harmful/Harmless/Beneficial",
  "description": "A paragraph describing the bug",
  "size": "Size range in mm or cm",
  "diet": "What it eats",
  "lifespan": "Typical lifespan",
  "threatLevel": "Detailed assessment of whether the bug is harmful, beneficial, or neutral",
  "pestControlRecommendations": "If it's a pest, provide recommendations for control",
  "environmentalImpact": "How this bug affects the ecosystem - pollination, decomposition, etc.",
  "conservationStatus": "Conservation status - endangered, threatened, common, etc.",
  "similarSpecies": [
    {
      "name": "Similar Species 1",
      "scientificName": "Scientific Name",
      "differentiatingFeatures": "How to tell it apart from the identified bug",
      "commonlyConfusedWith": true
    }
  ],
  "alternativeMatches": [
    {
      "name": "Alternative Bug 1",
      "scientificName": "Scientific Name 1",
      "confidence": 65
    }
  ]
}

ONLY return a valid JSON object. Do not include any other text.
`
